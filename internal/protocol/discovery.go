package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Discovery runs over its own broadcast-capable UDP socket, separate from the
// orientation stream. A sender broadcasts DiscoveryToken to DiscoveryPort;
// a receiver that recognizes the token replies unicast with
// "GYRO_SERVER|<port>", where <port> is the orientation listen port. The
// reply's source IP is the service address.
const (
	DiscoveryToken  = "GYRO_DISCOVER"
	DiscoveryPrefix = "GYRO_SERVER"
	DiscoveryPort   = 47810
)

// BuildDiscoveryResponse formats the responder's reply for the given service
// port.
func BuildDiscoveryResponse(port int) string {
	return fmt.Sprintf("%s|%d", DiscoveryPrefix, port)
}

// ParseDiscoveryResponse extracts the service port from a discovery reply.
// Anything that is not "GYRO_SERVER|<port>" with a valid port is rejected.
func ParseDiscoveryResponse(s string) (int, error) {
	prefix, portStr, ok := strings.Cut(strings.TrimSpace(s), "|")
	if !ok || prefix != DiscoveryPrefix {
		return 0, fmt.Errorf("protocol: malformed discovery response %q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("protocol: discovery response has invalid port %q", portStr)
	}
	return port, nil
}

// PairingInfo is the payload carried by out-of-band pairing channels (the
// mobile app shows it as a QR code). Both fields are required.
type PairingInfo struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// ParsePairingInfo decodes a pairing payload, rejecting missing or invalid
// fields rather than defaulting them to zero values.
func ParsePairingInfo(data []byte) (PairingInfo, error) {
	var info PairingInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PairingInfo{}, fmt.Errorf("protocol: malformed pairing payload: %w", err)
	}
	if info.IP == "" {
		return PairingInfo{}, fmt.Errorf("protocol: pairing payload missing ip")
	}
	if info.Port < 1 || info.Port > 65535 {
		return PairingInfo{}, fmt.Errorf("protocol: pairing payload has invalid port %d", info.Port)
	}
	return info, nil
}
