// Package link watches the host's network link without blocking.
//
// Monitor.Update is called from the control loop on every tick. It refreshes
// interface state at most once per refreshInterval, and while the link is
// down it fires the reconnect hook at most once per configured cooldown.
// The optional reachability probe (ICMP echo via go-ping) runs on its own
// goroutine; its result is collected by a later Update.
package link
