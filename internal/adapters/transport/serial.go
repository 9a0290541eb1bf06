package transport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialConfig mirrors the pyserial-style settings used in lab config files.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	Baudrate int           `yaml:"baudrate"`
	Bytesize int           `yaml:"bytesize"`
	Parity   string        `yaml:"parity"`
	Stopbits float64       `yaml:"stopbits"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *SerialConfig) ApplyDefaults() {
	if c.Baudrate == 0 {
		c.Baudrate = 9600
	}
	if c.Bytesize == 0 {
		c.Bytesize = 8
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.Stopbits == 0 {
		c.Stopbits = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

func (c *SerialConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("serial port is required")
	}
	if _, err := c.mode(); err != nil {
		return err
	}
	return nil
}

func (c *SerialConfig) mode() (*serial.Mode, error) {
	m := &serial.Mode{BaudRate: c.Baudrate, DataBits: c.Bytesize}
	switch strings.ToUpper(c.Parity) {
	case "N", "NONE":
		m.Parity = serial.NoParity
	case "E", "EVEN":
		m.Parity = serial.EvenParity
	case "O", "ODD":
		m.Parity = serial.OddParity
	case "M", "MARK":
		m.Parity = serial.MarkParity
	case "S", "SPACE":
		m.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("unknown parity %q", c.Parity)
	}
	switch c.Stopbits {
	case 1:
		m.StopBits = serial.OneStopBit
	case 1.5:
		m.StopBits = serial.OnePointFiveStopBits
	case 2:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %v", c.Stopbits)
	}
	return m, nil
}

// OpenSerial opens and configures the port.
func OpenSerial(c SerialConfig) (serial.Port, error) {
	c.ApplyDefaults()
	mode, err := c.mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(c.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", c.Port, err)
	}
	if err := port.SetReadTimeout(c.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", c.Port, err)
	}
	// Some USB adapters drop the first bytes written right after open.
	time.Sleep(100 * time.Millisecond)
	return port, nil
}

// Ports lists serial ports visible to the OS.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
