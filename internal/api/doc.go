// Package api implements the diagnostics HTTP API of liminald.
//
// Every read of peripheral state goes through the control loop
// (controller.Controller.Do), so handlers never touch a registry from the
// HTTP goroutines. The API is diagnostic: apart from re-running
// initialization of a peripheral it cannot change device state. Commands
// arrive over MQTT only.
//
// Routes:
//
//	GET  /healthz                      loop responsiveness and component checks
//	GET  /status                       the status report, as published on MQTT
//	GET  /metrics                      Go runtime and journal database statistics
//	GET  /actuators/{name}             actuator snapshot
//	POST /actuators/{name}/reinit      re-run actuator initialization
//	GET  /actuators/{name}/journal     recent commands for one actuator
//	GET  /sensors/{name}               latest sensor reading
//	POST /sensors/{name}/reinit        re-run sensor initialization
//	GET  /journal                      recent commands
//
// The server follows the same lifecycle as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
