package telegram

import "fmt"

// Family distinguishes the node types whose payloads differ.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyRGBI
	FamilySAID
)

func (f Family) String() string {
	switch f {
	case FamilyRGBI:
		return "RGBI"
	case FamilySAID:
		return "SAID"
	default:
		return "unknown"
	}
}

// Manufacturer/part combinations of the supported families.
const (
	ManuPartRGBI uint32 = 0x000
	ManuPartSAID uint32 = 0x001

	ManufacturerAMSOSRAM uint16 = 0x000
)

// Identity is the 32-bit id returned by IDENTIFY:
// type[31:28] manufacturer[27:18] part[17:6] revision[5:0].
type Identity uint32

func (id Identity) Type() uint8          { return uint8(id >> 28 & 0x00F) }
func (id Identity) Manufacturer() uint16 { return uint16(id >> 18 & 0x3FF) }
func (id Identity) Part() uint16         { return uint16(id >> 6 & 0xFFF) }
func (id Identity) Revision() uint8      { return uint8(id & 0x03F) }

// ManuPart is manufacturer and part combined.
func (id Identity) ManuPart() uint32 { return uint32(id >> 6 & 0x3FFFFF) }

func (id Identity) IsRGBI() bool { return id.ManuPart() == ManuPartRGBI }
func (id Identity) IsSAID() bool { return id.ManuPart() == ManuPartSAID }

func (id Identity) Family() Family {
	switch {
	case id.IsRGBI():
		return FamilyRGBI
	case id.IsSAID():
		return FamilySAID
	default:
		return FamilyUnknown
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("0x%08X", uint32(id))
}
