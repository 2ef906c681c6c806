package handler

import (
	"errors"
	"fmt"
	"net"
)

// ErrInvalidBSSID is returned when a BSSID is not a 6-octet hardware address.
var ErrInvalidBSSID = errors.New("invalid bssid")

const bssidLength = 6

// parseBSSID converts a colon/hex BSSID into raw octets. The returned key is
// the canonical lowercase form used to index handler state, so "AA:BB:..."
// and "aa:bb:..." refer to the same access point.
func parseBSSID(s string) (net.HardwareAddr, string, error) {
	if s == "" {
		return nil, "", fmt.Errorf("%w: empty", ErrInvalidBSSID)
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q: %v", ErrInvalidBSSID, s, err)
	}
	if len(hw) != bssidLength {
		return nil, "", fmt.Errorf("%w: %q has %d octets", ErrInvalidBSSID, s, len(hw))
	}
	return hw, hw.String(), nil
}
