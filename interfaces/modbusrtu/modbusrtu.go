// interfaces/modbusrtu/modbusrtu.go

// Package modbusrtu carries the shared pieces of the Modbus-RTU device
// drivers: client construction over one RS-485 adapter and the bit packing
// helpers the register maps use. Independent of the HouseBlocks bus.
package modbusrtu

import (
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// Config is the RTU line configuration, fixed at open time.
type Config struct {
	PortPath string
	BaudRate int
	Parity   string // "N", "E", "O"
	StopBits int
	SlaveID  byte
	Timeout  time.Duration
}

// Client is one connected RTU slave endpoint.
type Client struct {
	handler *modbus.RTUClientHandler
	modbus.Client
}

func Connect(config Config) (*Client, error) {
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.Parity == "" {
		config.Parity = "N"
	}
	if config.StopBits == 0 {
		config.StopBits = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 250 * time.Millisecond
	}

	handler := modbus.NewRTUClientHandler(config.PortPath)
	handler.BaudRate = config.BaudRate
	handler.DataBits = 8
	handler.Parity = config.Parity
	handler.StopBits = config.StopBits
	handler.SlaveId = config.SlaveID
	handler.Timeout = config.Timeout

	if err := handler.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connect %s", config.PortPath)
	}
	return &Client{handler: handler, Client: modbus.NewClient(handler)}, nil
}

func (c *Client) Close() error {
	return c.handler.Close()
}
