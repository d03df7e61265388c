package probe

import (
	"fmt"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports. USB adapters carry their
// vendor/product ids in the description; other ports have none.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			result = append(result, Port{Name: d.Name, Description: describe(d)})
		}
		return result, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name})
	}
	return result, nil
}

// describe returns the USB details of a port without its name.
func describe(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return ""
	}
	desc := fmt.Sprintf("USB %s:%s", d.VID, d.PID)
	if d.Product != "" {
		desc += " " + d.Product
	}
	if d.SerialNumber != "" {
		desc += " #" + d.SerialNumber
	}
	return desc
}
