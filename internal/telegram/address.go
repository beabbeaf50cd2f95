package telegram

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 10-bit node address on the chain.
type Address uint16

const (
	Broadcast  Address = 0x000
	UnicastMin Address = 0x001
	UnicastMax Address = 0x3EF
	GroupMin   Address = 0x3F0
	GroupMax   Address = 0x3FE
	Uninit     Address = 0x3FF
)

// NumGroups is the number of multicast groups (0..14).
const NumGroups = 15

// Group returns the multicast address of group n. Any n outside 0..14 maps to
// Uninit, which every encoder rejects.
func Group(n int) Address {
	if n < 0 || n >= NumGroups {
		return Uninit
	}
	return GroupMin + Address(n)
}

func (a Address) IsBroadcast() bool { return a == Broadcast }
func (a Address) IsUnicast() bool   { return a >= UnicastMin && a <= UnicastMax }
func (a Address) IsGroup() bool     { return a >= GroupMin && a <= GroupMax }

// Valid reports whether a is a legal destination (broadcast, unicast or group).
func (a Address) Valid() bool {
	return a.IsBroadcast() || a.IsUnicast() || a.IsGroup()
}

func (a Address) String() string {
	return fmt.Sprintf("0x%03X", uint16(a))
}

// ParseAddress parses a numeric address ("0x001", "17"), "broadcast", or a
// group reference ("g3", "group3").
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "broadcast" || s == "all":
		return Broadcast, nil
	case strings.HasPrefix(s, "group") || strings.HasPrefix(s, "g"):
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimPrefix(s, "group"), "g"))
		if err != nil || Group(n) == Uninit {
			return Uninit, fmt.Errorf("group %q: %w", s, ErrAddress)
		}
		return Group(n), nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return Uninit, fmt.Errorf("address %q: %w", s, ErrAddress)
	}
	a := Address(v)
	if !a.Valid() {
		return Uninit, fmt.Errorf("address %s: %w", a, ErrAddress)
	}
	return a, nil
}
