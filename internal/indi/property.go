package indi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Perm is the client permission of a property vector.
type Perm string

// Property permissions as sent by the server.
const (
	PermRO Perm = "ro"
	PermWO Perm = "wo"
	PermRW Perm = "rw"
)

// Writable reports whether the client may change the property.
func (p Perm) Writable() bool {
	return p != PermRO
}

// State is the state of a property vector.
type State string

// Property states.
const (
	StateIdle  State = "Idle"
	StateOk    State = "Ok"
	StateBusy  State = "Busy"
	StateAlert State = "Alert"
)

// SwitchRule controls how many switches of a vector may be on at once.
type SwitchRule string

// Switch rules.
const (
	RuleOneOfMany SwitchRule = "OneOfMany"
	RuleAtMostOne SwitchRule = "AtMostOne"
	RuleAnyOfMany SwitchRule = "AnyOfMany"
)

// BlobMode controls whether the server delivers BLOBs to this client.
type BlobMode string

// BLOB delivery modes.
const (
	BlobNever BlobMode = "Never"
	BlobAlso  BlobMode = "Also"
	BlobOnly  BlobMode = "Only"
)

// Kind identifies the type of a property vector.
type Kind int

// Property vector kinds.
const (
	KindNumber Kind = iota + 1
	KindSwitch
	KindText
	KindBlob
	KindLight
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindSwitch:
		return "Switch"
	case KindText:
		return "Text"
	case KindBlob:
		return "BLOB"
	case KindLight:
		return "Light"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Vector holds the attributes shared by all property vectors.
type Vector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	Perm      Perm
	State     State
	Timeout   float64
	Timestamp string
}

// Meta returns the shared vector attributes.
func (v *Vector) Meta() *Vector { return v }

// Property is implemented by every vector type.
type Property interface {
	Meta() *Vector
	Kind() Kind
}

// Number is one element of a NumberVector.
type Number struct {
	Name   string
	Label  string
	Format string
	Min    float64
	Max    float64
	Step   float64
	Value  float64
}

// NumberVector is a named list of numbers.
type NumberVector struct {
	Vector
	Numbers []Number
}

// Kind implements Property.
func (*NumberVector) Kind() Kind { return KindNumber }

// Find returns the element with the given name, or nil.
func (v *NumberVector) Find(name string) *Number {
	for i := range v.Numbers {
		if v.Numbers[i].Name == name {
			return &v.Numbers[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the vector.
func (v *NumberVector) Clone() *NumberVector {
	c := *v
	c.Numbers = append([]Number(nil), v.Numbers...)
	return &c
}

// Switch is one element of a SwitchVector.
type Switch struct {
	Name  string
	Label string
	On    bool
}

// SwitchVector is a named list of switches.
type SwitchVector struct {
	Vector
	Rule     SwitchRule
	Switches []Switch
}

// Kind implements Property.
func (*SwitchVector) Kind() Kind { return KindSwitch }

// Find returns the element with the given name, or nil.
func (v *SwitchVector) Find(name string) *Switch {
	for i := range v.Switches {
		if v.Switches[i].Name == name {
			return &v.Switches[i]
		}
	}
	return nil
}

// OnIndex returns the index of the first switch that is on, or -1.
func (v *SwitchVector) OnIndex() int {
	for i := range v.Switches {
		if v.Switches[i].On {
			return i
		}
	}
	return -1
}

// OnSwitch returns the first switch that is on, or nil.
func (v *SwitchVector) OnSwitch() *Switch {
	if i := v.OnIndex(); i >= 0 {
		return &v.Switches[i]
	}
	return nil
}

// Reset turns every switch off.
func (v *SwitchVector) Reset() {
	for i := range v.Switches {
		v.Switches[i].On = false
	}
}

// Clone returns a deep copy of the vector.
func (v *SwitchVector) Clone() *SwitchVector {
	c := *v
	c.Switches = append([]Switch(nil), v.Switches...)
	return &c
}

// Text is one element of a TextVector.
type Text struct {
	Name  string
	Label string
	Value string
}

// TextVector is a named list of strings.
type TextVector struct {
	Vector
	Texts []Text
}

// Kind implements Property.
func (*TextVector) Kind() Kind { return KindText }

// Find returns the element with the given name, or nil.
func (v *TextVector) Find(name string) *Text {
	for i := range v.Texts {
		if v.Texts[i].Name == name {
			return &v.Texts[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the vector.
func (v *TextVector) Clone() *TextVector {
	c := *v
	c.Texts = append([]Text(nil), v.Texts...)
	return &c
}

// Blob is one element of a BlobVector. Data is only valid for the duration
// of the BlobUpdated callback that delivered it.
type Blob struct {
	Name   string
	Label  string
	Format string
	Size   int
	Data   []byte

	// Vector is the vector the element belongs to.
	Vector *BlobVector
}

// BlobVector is a named list of binary payloads.
type BlobVector struct {
	Vector
	Blobs []Blob
}

// Kind implements Property.
func (*BlobVector) Kind() Kind { return KindBlob }

// Find returns the element with the given name, or nil.
func (v *BlobVector) Find(name string) *Blob {
	for i := range v.Blobs {
		if v.Blobs[i].Name == name {
			return &v.Blobs[i]
		}
	}
	return nil
}

// LightVector is a read-only status vector. Lights are tracked so that the
// store mirrors the device, but nothing in this module acts on them.
type LightVector struct {
	Vector
	Lights map[string]State
}

// Kind implements Property.
func (*LightVector) Kind() Kind { return KindLight }

// ParseNumber parses an INDI number value. Besides plain decimals the
// protocol allows sexagesimal notation ("-12:30:15.5", "12 30", "12;30").
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidNumber)
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == ';'
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}

	negative := strings.HasPrefix(fields[0], "-")
	var total float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
		}
		total += math.Abs(v) / math.Pow(60, float64(i))
	}
	if negative {
		total = -total
	}
	return total, nil
}

// FormatNumber renders a number for a new*Vector message.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
