package gsioc

import (
	"context"
	"fmt"
)

// DeviceInfo identifies a device found on the bus.
type DeviceInfo struct {
	Address    Address
	ModuleInfo string
}

// String implements fmt.Stringer.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%d - %s", d.Address, d.ModuleInfo)
}

// Device is a handle for one device address on a Bus.
//
// Instrument wrappers (pumps, liquid handlers) embed or hold a Device and
// format their command characters and parameter strings on top of it. Every
// command connects to the device first, because the bus deselects after
// each exchange.
type Device struct {
	addr Address
	bus  *Bus
}

// Address returns the device address.
func (d *Device) Address() Address {
	return d.addr
}

// Connect selects the device. It returns false if the device did not
// acknowledge its address.
func (d *Device) Connect(ctx context.Context) (bool, error) {
	return d.bus.Connect(ctx, d.addr)
}

// ExecuteImmediate connects to the device and runs an immediate command.
func (d *Device) ExecuteImmediate(ctx context.Context, cmd byte) (*Response, error) {
	return d.bus.ExecuteImmediate(ctx, d.addr, cmd)
}

// ExecuteBuffered connects to the device and runs a buffered command.
func (d *Device) ExecuteBuffered(ctx context.Context, cmd byte, params string) error {
	return d.bus.ExecuteBuffered(ctx, d.addr, cmd, params)
}

// Reset sends the master reset command and returns the response text.
func (d *Device) Reset(ctx context.Context) (string, error) {
	return d.bus.ResetDevice(ctx, d.addr)
}

// ModuleInfo returns the module identification string of the device.
func (d *Device) ModuleInfo(ctx context.Context) (string, error) {
	return d.bus.ModuleInfo(ctx, d.addr)
}
