package led

import (
	"periph.io/x/devices/v3/screen1d"
)

// Console renders the strip as a row of ANSI colored blocks on stdout.
type Console struct {
	dev *screen1d.Dev
}

func NewConsole(pixels int) *Console {
	return &Console{dev: screen1d.New(&screen1d.Opts{X: pixels})}
}

func (c *Console) Write(rgb []byte) error {
	_, err := c.dev.Write(rgb)
	return err
}

func (c *Console) Close() error { return c.dev.Halt() }
