package gsioc

import "strconv"

const (
	// MaxAddress is the highest device address on the bus.
	MaxAddress = 63

	addressMask  = 0x3F
	addressFrame = 0x80
)

// Address is a GSIOC device address in [0, 63].
//
// Only the low 6 bits are significant; values above 63 alias lower addresses.
type Address uint8

// NewAddress masks v to the 6-bit address space.
func NewAddress(v int) Address {
	return Address(v & addressMask)
}

// Masked returns a with the insignificant high bits cleared.
func (a Address) Masked() Address {
	return a & addressMask
}

// WireByte returns the address frame sent on the bus to select a.
func (a Address) WireByte() byte {
	return byte(a&addressMask) | addressFrame
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return strconv.Itoa(int(a.Masked()))
}

// AddressFromWire decodes an address frame. It reports false if b is not an
// address frame (high bit clear) or is one of the reserved bus bytes.
func AddressFromWire(b byte) (Address, bool) {
	if b&addressFrame == 0 || b&^(addressFrame|addressMask) != 0 {
		return 0, false
	}

	return Address(b & addressMask), true
}
