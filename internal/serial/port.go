// Package serial locates, opens and splits the physical serial device, and
// exposes it to the relay engine as a framed transport.Link.
package serial

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/1ureka/ntusb/internal/fault"
)

// Kind classifies a discovered port by the bus it hangs off.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUSB
	KindBluetooth
	KindPCI
)

func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "usb"
	case KindBluetooth:
		return "bluetooth"
	case KindPCI:
		return "pci"
	default:
		return "unknown"
	}
}

// PortInfo describes one port reported by the operating system.
type PortInfo struct {
	Name         string
	Kind         Kind
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (p PortInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s", p.Name, p.Kind)
	if p.VID != "" || p.PID != "" {
		fmt.Fprintf(&b, " %s:%s", p.VID, p.PID)
	}
	if p.Product != "" {
		fmt.Fprintf(&b, " %q", p.Product)
	}
	if p.SerialNumber != "" {
		fmt.Fprintf(&b, " sn=%s", p.SerialNumber)
	}
	b.WriteString(")")
	return b.String()
}

// Lister enumerates the serial ports present on the host.
type Lister interface {
	ListPorts() ([]PortInfo, error)
}

// SystemLister enumerates ports through the operating system.
type SystemLister struct{}

// ListPorts implements Lister.
func (SystemLister) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Kind:         classify(d.Name, d.IsUSB),
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// classify trusts the enumerator's USB flag. Otherwise only the device nodes
// the Bluetooth stack creates are recognised; the enumerator reports no bus
// for the rest, so they stay unknown rather than guessed as PCI.
func classify(name string, isUSB bool) Kind {
	if isUSB {
		return KindUSB
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "rfcomm") || strings.Contains(lower, "bluetooth") {
		return KindBluetooth
	}
	return KindUnknown
}

// Discovery errors. Both also match fault.ErrDiscovery.
var (
	ErrNoPorts      = errors.New("no serial ports found")
	ErrPortNotFound = errors.New("serial port not found")
)

// NotFoundError reports a failed resolve together with every port that was
// seen, for diagnostics.
type NotFoundError struct {
	Name  string
	Ports []PortInfo
}

func (e *NotFoundError) Error() string {
	if len(e.Ports) == 0 {
		return fmt.Sprintf("usb serial port %s not found: no ports available", e.Name)
	}
	seen := make([]string, len(e.Ports))
	for i, p := range e.Ports {
		seen[i] = p.String()
	}
	return fmt.Sprintf("usb serial port %s not found, available: %s", e.Name, strings.Join(seen, ", "))
}

// Unwrap exposes the discovery class and the specific reason.
func (e *NotFoundError) Unwrap() []error {
	if len(e.Ports) == 0 {
		return []error{fault.ErrDiscovery, ErrNoPorts}
	}
	return []error{fault.ErrDiscovery, ErrPortNotFound}
}

// Resolve selects the USB port whose name equals name.
func Resolve(name string, ports []PortInfo) (PortInfo, error) {
	for _, p := range ports {
		if p.Name == name && p.Kind == KindUSB {
			return p, nil
		}
	}
	return PortInfo{}, &NotFoundError{Name: name, Ports: ports}
}
