package link

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-ping/ping"
)

// ErrNoInterface is returned when no usable interface can be found.
var ErrNoInterface = errors.New("link: no usable network interface")

// Observation is one reading of interface state.
type Observation struct {
	Interface string
	MAC       string
	Address   string
	Up        bool
	// Signal is the wireless signal level in dBm, 0 when unknown or wired.
	Signal int
}

// Source reads interface state.
type Source interface {
	Observe(iface string) (Observation, error)
}

// Prober checks that a host answers. Probe may block up to timeout.
type Prober interface {
	Probe(host string, timeout time.Duration) (rtt time.Duration, err error)
}

// NetSource reads interface state from the kernel.
type NetSource struct {
	// WirelessPath is the wireless statistics file, /proc/net/wireless when empty.
	WirelessPath string
}

// Observe implements Source. An empty iface selects the first non-loopback
// interface that is up.
func (s NetSource) Observe(iface string) (Observation, error) {
	ifc, err := s.pick(iface)
	if err != nil {
		return Observation{Interface: iface}, err
	}

	obs := Observation{
		Interface: ifc.Name,
		MAC:       ifc.HardwareAddr.String(),
		Up:        ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagRunning != 0,
	}

	addrs, err := ifc.Addrs()
	if err != nil {
		return obs, fmt.Errorf("link: addresses of %s: %w", ifc.Name, err)
	}
	obs.Address = preferredAddress(addrs)

	path := s.WirelessPath
	if path == "" {
		path = "/proc/net/wireless"
	}
	if f, err := os.Open(path); err == nil {
		if level, ok := wirelessSignal(f, ifc.Name); ok {
			obs.Signal = level
		}
		f.Close()
	}

	return obs, nil
}

func (s NetSource) pick(iface string) (*net.Interface, error) {
	if iface != "" {
		ifc, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoInterface, iface, err)
		}
		return ifc, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoInterface, err)
	}
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagLoopback == 0 && ifaces[i].Flags&net.FlagUp != 0 {
			return &ifaces[i], nil
		}
	}
	return nil, ErrNoInterface
}

// preferredAddress returns the first global unicast IPv4 address, falling
// back to the first global unicast IPv6 address.
func preferredAddress(addrs []net.Addr) string {
	var v6 string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		if ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
		if v6 == "" {
			v6 = ipnet.IP.String()
		}
	}
	return v6
}

// wirelessSignal extracts the signal level for iface from the
// /proc/net/wireless format:
//
//	Inter-| sta-|   Quality        |   Discarded packets ...
//	 face | tus | link level noise |  nwid  crypt ...
//	 wlan0: 0000   54.  -56.  -256        0      0 ...
func wirelessSignal(r io.Reader, iface string) (int, bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || name != iface {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return 0, false
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}

// PingProber sends a single unprivileged ICMP echo.
type PingProber struct{}

// Probe implements Prober.
func (PingProber) Probe(host string, timeout time.Duration) (time.Duration, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, fmt.Errorf("link: probe %s: %w", host, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return 0, fmt.Errorf("link: probe %s: %w", host, err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("link: probe %s: no reply within %v", host, timeout)
	}
	return stats.AvgRtt, nil
}
