package peer

import (
	"net"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEConfig lists the STUN and TURN servers used for negotiation.
type ICEConfig struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts candidates to TURN relays.
	ForceRelay bool
}

// Configuration builds the pion configuration. Relay-only mode is used when
// forced, or when TURN is available and the local network looks like it sits
// behind a VPN or carrier-grade NAT.
func (c ICEConfig) Configuration() webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if len(c.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: c.STUNServers})
	}
	if len(c.TURNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       c.TURNServers,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(c.TURNServers) > 0 && (c.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	return anyRestrictedInterface(interfaces, func(iface net.Interface) ([]net.Addr, error) {
		return iface.Addrs()
	})
}

// CGNAT range. Cloudflare WARP, Tailscale and carrier NATs use it.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

func anyRestrictedInterface(interfaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error)) bool {
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		list, err := addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range list {
			if isCGNAT(addr) {
				return true
			}
		}
	}
	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range tunnelPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	return ip != nil && cgnatBlock.Contains(ip)
}
