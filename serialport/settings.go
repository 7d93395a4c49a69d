package serialport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Default line settings of a GSIOC bus.
const (
	DefaultBaudRate    = 19200
	DefaultDataBits    = 8
	DefaultParity      = "none"
	DefaultStopBits    = "1"
	DefaultReadTimeout = 50 * time.Millisecond
)

// Settings describes a serial port and its line parameters.
//
// The zero value is not usable; start from DefaultSettings and override
// fields, or decode a YAML document over it.
type Settings struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	Parity      string        `yaml:"parity"`    // none, odd, even, mark, space
	DataBits    int           `yaml:"data_bits"` // 5 to 8
	StopBits    string        `yaml:"stop_bits"` // 1, 1.5, 2
	RTS         bool          `yaml:"rts"`
	DTR         bool          `yaml:"dtr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultSettings returns 19200 baud 8N1 with RTS and DTR asserted, the
// line setup GSIOC interfaces expect.
func DefaultSettings(port string) Settings {
	return Settings{
		Port:        port,
		BaudRate:    DefaultBaudRate,
		Parity:      DefaultParity,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		RTS:         true,
		DTR:         true,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Validate checks every field and returns the first problem found.
func (s Settings) Validate() error {
	if s.Port == "" {
		return errors.New("serialport: port name is empty")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("serialport: baud rate %d must be positive", s.BaudRate)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("serialport: data bits %d out of range [5, 8]", s.DataBits)
	}
	if _, err := parseParity(s.Parity); err != nil {
		return err
	}
	if _, err := parseStopBits(s.StopBits); err != nil {
		return err
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("serialport: read timeout %v must be positive", s.ReadTimeout)
	}

	return nil
}

// mode converts the settings to a go.bug.st/serial mode. s must be valid.
func (s Settings) mode() *serial.Mode {
	parity, _ := parseParity(s.Parity)
	stopBits, _ := parseStopBits(s.StopBits)

	return &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		Parity:   parity,
		StopBits: stopBits,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: s.RTS,
			DTR: s.DTR,
		},
	}
}

func parseParity(name string) (serial.Parity, error) {
	switch strings.ToLower(name) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	}

	return serial.NoParity, fmt.Errorf("serialport: unknown parity %q", name)
}

func parseStopBits(name string) (serial.StopBits, error) {
	switch name {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	}

	return serial.OneStopBit, fmt.Errorf("serialport: unknown stop bits %q", name)
}
