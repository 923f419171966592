// Liminal Core - device controller daemon
//
// liminald drives a small set of actuators and sensors from a single
// control loop and talks to the rest of the system over MQTT: commands in,
// sensor samples and status reports out. Sensor samples and device health
// can additionally be written to InfluxDB, and every routed command can be
// journaled to a local SQLite file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/liminal-dev/liminal-core/internal/api"
	"github.com/liminal-dev/liminal-core/internal/controller"
	"github.com/liminal-dev/liminal-core/internal/hal"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/database"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/influxdb"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/logging"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/mqtt"
	"github.com/liminal-dev/liminal-core/internal/journal"
	"github.com/liminal-dev/liminal-core/internal/link"
	"github.com/liminal-dev/liminal-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   defaultConfigPath,
		Usage:   "configuration file",
		EnvVars: []string{"LIMINAL_CONFIG"},
	}
}

func newApp() *cli.App {
	runAction := func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx, c.String("config"))
	}

	return &cli.App{
		Name:    "liminald",
		Usage:   "liminal device controller",
		Version: version,
		Flags:   []cli.Flag{configFlag()},
		Action:  runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the control loop until interrupted",
				Flags:  []cli.Flag{configFlag()},
				Action: runAction,
			},
			{
				Name:  "validate",
				Usage: "load and validate the configuration, then exit",
				Flags: []cli.Flag{configFlag()},
				Action: func(c *cli.Context) error {
					return validate(c, c.String("config"))
				},
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "liminald %s (commit %s, built %s)\n", version, commit, date)
					return nil
				},
			},
		},
	}
}

// validate loads the configuration and builds the peripheral registries
// against the simulated backend, so kind and address mistakes surface
// without touching hardware.
func validate(c *cli.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	actuators, sensors, err := controller.BuildRegistries(cfg, hal.NewSim(), nil)
	if err != nil {
		return fmt.Errorf("building peripherals: %w", err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "configuration %s is valid\n", path)
	fmt.Fprintf(out, "  device:    %s (topic root %q)\n", cfg.Device.ID, cfg.Device.TopicRoot)
	fmt.Fprintf(out, "  actuators: %d\n", actuators.Len())
	fmt.Fprintf(out, "  sensors:   %d\n", sensors.Len())
	if err := cfg.MQTT.Configured(); err != nil {
		fmt.Fprintf(out, "  warning:   %v; the transport will stay idle\n", err)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
// Deferred cleanups run in reverse order once the control loop returns.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Liminal Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("device_id", cfg.Device.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Embedded broker (optional)
	if cfg.MQTT.Embedded.Enabled {
		broker, brokerErr := mqtt.NewBroker(cfg.MQTT.Embedded, cfg.MQTT.Auth, log.Logger)
		if brokerErr != nil {
			return fmt.Errorf("starting embedded broker: %w", brokerErr)
		}
		broker.Start()
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := broker.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
		log.Info("embedded broker listening", "address", broker.Addr())
	}

	// Hardware
	backend, err := hal.Open(cfg.HAL)
	if err != nil {
		return fmt.Errorf("opening hardware backend: %w", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			log.Error("error closing hardware backend", "error", closeErr)
		}
	}()
	log.Info("hardware backend opened", "backend", backend.Name())

	actuators, sensors, err := controller.BuildRegistries(cfg, backend, log.Component("peripheral"))
	if err != nil {
		return fmt.Errorf("building peripherals: %w", err)
	}

	// MQTT
	mqttCfg, err := clientConfig(cfg.MQTT)
	if err != nil {
		return err
	}
	clientID := mqtt.ClientID(cfg.MQTT.Broker.ClientIDPrefix, cfg.Link.Interface)
	mqttClient := mqtt.New(mqttCfg, mqtt.NewTopics(cfg.Device), clientID)
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	checks := map[string]api.HealthChecker{"mqtt": mqttClient}

	// InfluxDB (optional). An unreachable server only disables telemetry.
	var telemetry controller.Telemetry
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
	default:
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		telemetry = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Command journal (optional)
	var (
		journalRepo journal.Repository
		db          *database.DB
	)
	if cfg.Journal.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening journal database: %w", err)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		journalRepo = journal.NewSQLiteRepository(db.DB)
		checks["database"] = db
		log.Info("command journal ready", "path", cfg.Journal.Path)
	}

	linkLog := log.Component("link")
	linkOpts := []link.Option{link.WithLogger(linkLog)}
	if len(cfg.Link.ReconnectCommand) > 0 {
		reconnector := link.NewCommandReconnector(cfg.Link.ReconnectCommand, cfg.Link.ReconnectTimeout, linkLog)
		linkOpts = append(linkOpts, link.WithReconnect(reconnector.Reconnect))
		log.Info("link reconnect command configured", "command", cfg.Link.ReconnectCommand[0])
	}
	monitor := link.NewMonitor(cfg.Link, linkOpts...)

	ctrl, err := controller.New(cfg, version, controller.Deps{
		Actuators: actuators,
		Sensors:   sensors,
		Transport: mqttClient,
		Link:      monitor,
		Telemetry: telemetry,
		Journal:   journalRepo,
		Logger:    log.Component("controller"),
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	// Diagnostics API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			Logger:     log.Component("api"),
			Controller: ctrl,
			Checks:     checks,
			Version:    version,
		}
		if db != nil {
			deps.Journal = journalRepo
			deps.Database = db
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"client_id", clientID,
		"actuators", actuators.Len(),
		"sensors", sensors.Len(),
	)

	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("control loop: %w", err)
	}

	log.Info("Liminal Core stopped")
	return nil
}

// clientConfig points the MQTT client at the embedded broker when one is
// enabled; otherwise the configured broker is used unchanged.
func clientConfig(cfg config.MQTTConfig) (config.MQTTConfig, error) {
	if !cfg.Embedded.Enabled {
		return cfg, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Embedded.Address)
	if err != nil {
		return cfg, fmt.Errorf("embedded broker address %q: %w", cfg.Embedded.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return cfg, fmt.Errorf("embedded broker port %q: %w", portStr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	cfg.Broker.Host = host
	cfg.Broker.Port = port
	cfg.Broker.TLS = false
	return cfg, nil
}
