package cci

import (
	"fmt"
	"sync"

	"github.com/rocketbitz/cci-go/transport"
)

// registeredTransports maps a transport name (as it appears in a device's
// `transport =` config line) to its constructor. Concrete transports
// register themselves from an init() in their own package (see
// transport/udp's registration), so cci/ never imports a wire transport
// directly — the dependency points the other way, keeping the plugin
// dispatch free of a global switch.
var (
	registryMu          sync.Mutex
	registeredTransports = map[string]func() transport.Transport{}
	initialized          bool
	devices              []Device
	deviceTransports     = map[string]transport.Transport{}
)

// RegisterTransport installs a transport constructor under name. It is
// intended to be called from a transport package's init().
func RegisterTransport(name string, ctor func() transport.Transport) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredTransports[name] = ctor
}

// Init discovers the device registry (via CCI_CONFIG, see internal/config)
// and initializes every transport referenced by a device. Calling Init a
// second time is a no-op if flags is a subset of the first call's flags;
// otherwise it fails with EINVAL, resolving spec.md §9 Open Question (b).
func Init(abiVersion int, flags uint32) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if abiVersion != ABIVersion {
		return NewError("init", StatusEInval, fmt.Errorf("unsupported ABI version %d", abiVersion))
	}
	if initialized {
		if flags&^initFlags != 0 {
			return NewError("init", StatusEInval, fmt.Errorf("cci: re-init with stricter flags not supported"))
		}
		return nil
	}

	regDevices, err := loadDeviceRegistry()
	if err != nil {
		return err
	}

	devices = nil
	deviceTransports = map[string]transport.Transport{}
	for _, dev := range regDevices {
		ctor, ok := registeredTransports[dev.Transport]
		if !ok {
			continue
		}
		tp := ctor()
		if _, err := tp.Init(abiVersion, flags); err != nil {
			return NewError("init", StatusError, err)
		}
		discovered, err := tp.Devices()
		if err != nil {
			return NewError("init", StatusError, err)
		}
		found := false
		for _, d := range discovered {
			if d.Name != dev.Name {
				continue
			}
			merged := Device{
				Name:        d.Name,
				Transport:   dev.Transport,
				Priority:    dev.Priority,
				Default:     dev.Default,
				Params:      dev.Params,
				Up:          d.Up,
				MaxSendSize: d.MaxSendSize,
				Rate:        d.Rate,
			}
			devices = append(devices, merged)
			deviceTransports[merged.Name] = tp
			found = true
		}
		if !found {
			devices = append(devices, dev)
			deviceTransports[dev.Name] = tp
		}
	}

	initFlags = flags
	initialized = true
	return nil
}

var initFlags uint32

// Finalize clears the device registry and forgets the transports Init
// created, so a later Init starts afresh. It calls nothing on those
// transports and leaves endpoints created through them open.
func Finalize() error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if !initialized {
		return nil
	}
	devices = nil
	deviceTransports = map[string]transport.Transport{}
	initialized = false
	initFlags = 0
	return nil
}

// GetDevices returns the ordered device list (by descending priority) as
// enumerated at Init.
func GetDevices() ([]Device, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if !initialized {
		return nil, NewError("get_devices", StatusEInval, fmt.Errorf("cci: not initialized"))
	}
	out := make([]Device, len(devices))
	copy(out, devices)
	sortDevicesByPriority(out)
	return out, nil
}

func sortDevicesByPriority(ds []Device) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].Priority > ds[j-1].Priority; j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

func transportFor(deviceName string) (transport.Transport, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if !initialized {
		return nil, NewError("dispatch", StatusEInval, fmt.Errorf("cci: not initialized"))
	}
	if deviceName == "" {
		for _, d := range devices {
			if d.Default {
				return deviceTransports[d.Name], nil
			}
		}
		if len(devices) > 0 {
			best := devices[0]
			for _, d := range devices[1:] {
				if d.Priority > best.Priority {
					best = d
				}
			}
			return deviceTransports[best.Name], nil
		}
		return nil, NewError("dispatch", StatusErrNotFound, fmt.Errorf("cci: no devices available"))
	}
	tp, ok := deviceTransports[deviceName]
	if !ok {
		return nil, NewError("dispatch", StatusENoDevice, fmt.Errorf("cci: unknown device %q", deviceName))
	}
	return tp, nil
}

func defaultDeviceNamed(name string) (Device, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	if name == "" {
		var best *Device
		for i := range devices {
			if devices[i].Default {
				return devices[i], nil
			}
			if best == nil || devices[i].Priority > best.Priority {
				best = &devices[i]
			}
		}
		if best != nil {
			return *best, nil
		}
	}
	return Device{}, NewError("dispatch", StatusENoDevice, fmt.Errorf("cci: unknown device %q", name))
}

func translateTransportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		return ce
	}
	if te, ok := err.(*transport.Error); ok {
		return NewError(op, statusFromTransport(te.Status), te.Err)
	}
	return NewError(op, StatusError, err)
}
