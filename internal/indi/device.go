package indi

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// sendTimeout bounds a single new*Vector write.
const sendTimeout = 5 * time.Second

// Device is the property store of one remote device.
//
// A Device is created by the Client when the first property of a device is
// defined and lives as long as the Client. Its methods must only be called
// from the dispatch goroutine (inside a Handler callback or an Exec func).
type Device struct {
	name string
	send func(ctx context.Context, payload []byte) error

	numbers  map[string]*NumberVector
	switches map[string]*SwitchVector
	texts    map[string]*TextVector
	blobs    map[string]*BlobVector
	lights   map[string]*LightVector

	// blobModes tracks the enableBLOB mode per property; the empty key holds
	// the device-wide default.
	blobModes map[string]BlobMode
}

// NewDevice creates an empty property store. send writes an encoded message
// to the server; it may be nil for a store that never sends.
func NewDevice(name string, send func(ctx context.Context, payload []byte) error) *Device {
	return &Device{
		name:      name,
		send:      send,
		numbers:   make(map[string]*NumberVector),
		switches:  make(map[string]*SwitchVector),
		texts:     make(map[string]*TextVector),
		blobs:     make(map[string]*BlobVector),
		lights:    make(map[string]*LightVector),
		blobModes: map[string]BlobMode{"": BlobNever},
	}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Number returns the number vector with the given name, or nil.
func (d *Device) Number(name string) *NumberVector { return d.numbers[name] }

// Switch returns the switch vector with the given name, or nil.
func (d *Device) Switch(name string) *SwitchVector { return d.switches[name] }

// Text returns the text vector with the given name, or nil.
func (d *Device) Text(name string) *TextVector { return d.texts[name] }

// Blob returns the BLOB vector with the given name, or nil.
func (d *Device) Blob(name string) *BlobVector { return d.blobs[name] }

// Property returns the property with the given name, or nil.
func (d *Device) Property(name string) Property {
	if v, ok := d.numbers[name]; ok {
		return v
	}
	if v, ok := d.switches[name]; ok {
		return v
	}
	if v, ok := d.texts[name]; ok {
		return v
	}
	if v, ok := d.blobs[name]; ok {
		return v
	}
	if v, ok := d.lights[name]; ok {
		return v
	}
	return nil
}

// Properties returns every defined property sorted by name.
func (d *Device) Properties() []Property {
	props := make([]Property, 0, len(d.numbers)+len(d.switches)+len(d.texts)+len(d.blobs)+len(d.lights))
	for _, v := range d.numbers {
		props = append(props, v)
	}
	for _, v := range d.switches {
		props = append(props, v)
	}
	for _, v := range d.texts {
		props = append(props, v)
	}
	for _, v := range d.blobs {
		props = append(props, v)
	}
	for _, v := range d.lights {
		props = append(props, v)
	}
	sort.Slice(props, func(i, j int) bool {
		return props[i].Meta().Name < props[j].Meta().Name
	})
	return props
}

// IsConnected reports whether the driver's CONNECTION switch is on.
func (d *Device) IsConnected() bool {
	sv := d.switches["CONNECTION"]
	if sv == nil {
		return false
	}
	s := sv.Find("CONNECT")
	return s != nil && s.On
}

// SendNumber sends the vector as a newNumberVector command.
func (d *Device) SendNumber(v *NumberVector) error {
	return d.sendMessage(encodeNewNumber(d.name, v))
}

// SendSwitch sends the vector as a newSwitchVector command.
func (d *Device) SendSwitch(v *SwitchVector) error {
	return d.sendMessage(encodeNewSwitch(d.name, v))
}

// SendText sends the vector as a newTextVector command.
func (d *Device) SendText(v *TextVector) error {
	return d.sendMessage(encodeNewText(d.name, v))
}

// BlobEnabled reports whether BLOB delivery is enabled for the property.
// An empty property name asks for the device-wide mode.
func (d *Device) BlobEnabled(property string) bool {
	return d.BlobMode(property) != BlobNever
}

// BlobMode returns the delivery mode for the property, falling back to the
// device-wide mode.
func (d *Device) BlobMode(property string) BlobMode {
	if m, ok := d.blobModes[property]; ok {
		return m
	}
	return d.blobModes[""]
}

// SetBlobMode sends enableBLOB for the property (or the whole device when
// property is empty) and records the mode.
func (d *Device) SetBlobMode(mode BlobMode, property string) error {
	if err := d.sendMessage(encodeEnableBLOB(d.name, property, mode)); err != nil {
		return err
	}
	d.blobModes[property] = mode
	return nil
}

func (d *Device) sendMessage(payload []byte, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if d.send == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return d.send(ctx, payload)
}

// define stores a newly defined property, replacing any previous definition
// with the same name.
func (d *Device) define(p Property) {
	name := p.Meta().Name
	d.remove(name)
	switch v := p.(type) {
	case *NumberVector:
		d.numbers[name] = v
	case *SwitchVector:
		d.switches[name] = v
	case *TextVector:
		d.texts[name] = v
	case *BlobVector:
		for i := range v.Blobs {
			v.Blobs[i].Vector = v
		}
		d.blobs[name] = v
	case *LightVector:
		d.lights[name] = v
	}
}

// remove deletes a property; it reports whether the property existed.
func (d *Device) remove(name string) bool {
	if d.Property(name) == nil {
		return false
	}
	delete(d.numbers, name)
	delete(d.switches, name)
	delete(d.texts, name)
	delete(d.blobs, name)
	delete(d.lights, name)
	delete(d.blobModes, name)
	return true
}

// names returns the names of all defined properties.
func (d *Device) names() []string {
	props := d.Properties()
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Meta().Name
	}
	return names
}
