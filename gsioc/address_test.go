package gsioc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress_WireByte(t *testing.T) {
	for v := 0; v < 256; v++ {
		addr := NewAddress(v)
		b := addr.WireByte()

		assert.Equal(t, byte(v&0x3F)|0x80, b, "value %d", v)
		assert.LessOrEqual(t, int(addr), MaxAddress)
	}
}

func TestAddress_WireByteMasksHighBits(t *testing.T) {
	assert.Equal(t, byte(0x80), Address(64).WireByte())
	assert.Equal(t, byte(0xBF), Address(63).WireByte())
	assert.Equal(t, byte(0x85), Address(0xC5).WireByte())
	assert.Equal(t, Address(5), Address(0xC5).Masked())
	assert.Equal(t, "5", Address(0xC5).String())
}

func TestAddressFromWire(t *testing.T) {
	for a := 0; a <= MaxAddress; a++ {
		got, ok := AddressFromWire(Address(a).WireByte())
		assert.True(t, ok)
		assert.Equal(t, Address(a), got)
	}

	reserved := []byte{DisconnectByte, QueryByte, ACK, LF, CR, 0x00, 0x41}
	for _, b := range reserved {
		_, ok := AddressFromWire(b)
		assert.False(t, ok, "byte 0x%02X", b)
	}
}
