// Package nat performs best-effort NAT traversal at node startup: it tries
// UPnP first, then NAT-PMP, mapping the node's P2P port so peers behind the
// same traversal-capable router can reach it without manual configuration.
// Every failure here is swallowed and logged at warn — a node with no
// traversal support at all is still fully functional, just not
// auto-discoverable from outside its LAN.
package nat

import (
	"fmt"
	"net"
	"strconv"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/boocoin/boocoin/log"
)

const (
	mappingLease       = 2 * time.Hour
	mappingDescription = "boocoin"
)

var logger = log.New("module", "nat")

// MapPort attempts to map addr's port (host:port, host may be empty) on the
// local gateway so inbound peer traffic can reach this node. It never
// returns an error; all failures are logged and ignored.
func MapPort(addr string) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logger.Warn("cannot parse p2p address for NAT mapping", "addr", addr, "err", err)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Warn("cannot parse p2p port for NAT mapping", "addr", addr, "err", err)
		return
	}

	if tryUPnP(port) {
		return
	}
	if tryNATPMP(port) {
		return
	}
	logger.Warn("no NAT traversal available; relying on manual port forwarding or a public IP", "port", port)
}

// tryUPnP tries both generations of the UPnP Internet Gateway Device
// protocol that goupnp supports, since a given router may only implement
// one of them.
func tryUPnP(port int) bool {
	if clients, _, err := internetgateway2.NewWANIPConnection2Clients(); err == nil {
		for _, c := range clients {
			if addPortMapping2(c, port) {
				logger.Info("mapped port via UPnP (IGDv2)", "port", port)
				return true
			}
		}
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil {
		for _, c := range clients {
			if err := c.AddPortMapping("", uint16(port), "TCP", uint16(port), localIP(), true, mappingDescription, uint32(mappingLease.Seconds())); err == nil {
				logger.Info("mapped port via UPnP (IGDv1)", "port", port)
				return true
			}
		}
	}
	return false
}

func addPortMapping2(c *internetgateway2.WANIPConnection2, port int) bool {
	err := c.AddPortMapping("", uint16(port), "TCP", uint16(port), localIP(), true, mappingDescription, uint32(mappingLease.Seconds()))
	return err == nil
}

// tryNATPMP speaks NAT-PMP to the default gateway directly.
func tryNATPMP(port int) bool {
	gw, err := defaultGateway()
	if err != nil {
		logger.Debug("no default gateway found for NAT-PMP", "err", err)
		return false
	}
	client := natpmp.NewClient(gw)
	if _, err := client.AddPortMapping("tcp", port, port, int(mappingLease.Seconds())); err != nil {
		logger.Debug("NAT-PMP mapping failed", "err", err)
		return false
	}
	logger.Info("mapped port via NAT-PMP", "port", port, "gateway", gw)
	return true
}

func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// defaultGateway guesses the LAN gateway as the local IP with its last
// octet set to 1, the common case for consumer routers. There is no
// portable way to read the OS routing table without a platform-specific
// dependency the example pack does not carry.
func defaultGateway() (net.IP, error) {
	ip := net.ParseIP(localIP())
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("could not determine local IPv4 address")
	}
	v4 := ip.To4()
	gw := net.IPv4(v4[0], v4[1], v4[2], 1)
	return gw, nil
}
