package capture

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Device is a weak reference to a network interface: the capture runtime
// never owns it and never tears it down. Master points at the bonding
// device a slave interface belongs to, if any, letting the dispatch
// pipeline match frames arriving on a slave against a ring bound to the
// master (spec.md §4.2 step 2).
type Device struct {
	Name   string
	Index  int
	Master string // name of the bonding/master device, empty if none
}

// IsSlaveOf reports whether d is a slave of the device named master.
func (d Device) IsSlaveOf(master string) bool {
	return d.Master != "" && d.Master == master
}

// DeviceResolver looks up devices by name. The production implementation
// wraps vishvananda/netlink; tests use a static map.
type DeviceResolver interface {
	Resolve(name string) (Device, error)
}

// NetlinkResolver resolves devices through the kernel's netlink link table.
type NetlinkResolver struct{}

func (NetlinkResolver) Resolve(name string) (Device, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return Device{}, fmt.Errorf("%w: resolve device %q: %v", ErrNoDevice, name, err)
	}
	attrs := link.Attrs()

	dev := Device{Name: attrs.Name, Index: attrs.Index}
	if attrs.MasterIndex != 0 {
		if master, err := netlink.LinkByIndex(attrs.MasterIndex); err == nil {
			dev.Master = master.Attrs().Name
		}
	}
	return dev, nil
}

// StaticResolver is a fixed name->Device table, used in tests and for
// binding against synthetic devices that don't exist in the kernel's link
// table.
type StaticResolver map[string]Device

func (r StaticResolver) Resolve(name string) (Device, error) {
	dev, ok := r[name]
	if !ok {
		return Device{}, fmt.Errorf("%w: device %q not found", ErrNoDevice, name)
	}
	return dev, nil
}
