package chain

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidAddress is returned when a contract or wallet address does not
// match the expected hex format. Malformed addresses are rejected at the
// boundary; everything past it may assume well-formed, lowercased addresses.
var ErrInvalidAddress = errors.New("invalid contract address")

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ValidAddress reports whether addr is a well-formed, non-zero address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr) && !strings.EqualFold(addr, zeroAddress)
}

// NormalizeAddress validates addr and returns its canonical lowercase form.
func NormalizeAddress(addr string) (string, error) {
	if !ValidAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}
