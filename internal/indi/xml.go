package indi

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
)

// protocolVersion is the INDI protocol version announced in getProperties.
const protocolVersion = "1.7"

// timestampLayout is the INDI timestamp format (UTC, no zone suffix).
const timestampLayout = "2006-01-02T15:04:05"

// compressedSuffix marks zlib-compressed BLOB payloads.
const compressedSuffix = ".z"

// op is the action a server message asks the client to perform.
type op int

const (
	opDefine op = iota + 1
	opSet
	opDelete
	opMessage
	opReset
)

// message is a decoded server message ready to be applied to the store.
// Conversion (including base64 and zlib work for BLOBs) happens on the read
// goroutine so the dispatch goroutine only swaps values.
type message struct {
	op     op
	device string
	name   string
	text   string
	prop   Property
}

// xmlVector mirrors every def*/set*Vector element.
type xmlVector struct {
	XMLName   xml.Name
	Device    string       `xml:"device,attr"`
	Name      string       `xml:"name,attr"`
	Label     string       `xml:"label,attr"`
	Group     string       `xml:"group,attr"`
	State     string       `xml:"state,attr"`
	Perm      string       `xml:"perm,attr"`
	Rule      string       `xml:"rule,attr"`
	Timeout   string       `xml:"timeout,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Message   string       `xml:"message,attr"`
	Elements  []xmlElement `xml:",any"`
}

// xmlElement mirrors the one*/def* child elements.
type xmlElement struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Label   string `xml:"label,attr"`
	Format  string `xml:"format,attr"`
	Min     string `xml:"min,attr"`
	Max     string `xml:"max,attr"`
	Step    string `xml:"step,attr"`
	Size    string `xml:"size,attr"`
	Value   string `xml:",chardata"`
}

// readMessage reads the next top-level protocol element. Unknown elements
// are skipped and reported as (nil, nil).
func readMessage(dec *xml.Decoder) (*message, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		var raw xmlVector
		if err := dec.DecodeElement(&raw, &start); err != nil {
			// Syntax errors leave the decoder unusable; the caller reconnects.
			return nil, fmt.Errorf("decode %s: %w", start.Name.Local, err)
		}
		msg, err := convertMessage(&raw)
		if err != nil && !errors.Is(err, ErrInvalidMessage) {
			err = fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return msg, err
	}
}

// convertMessage turns a raw element into a message.
func convertMessage(raw *xmlVector) (*message, error) {
	tag := raw.XMLName.Local
	msg := &message{device: raw.Device, name: raw.Name, text: raw.Message}

	switch {
	case tag == "delProperty":
		msg.op = opDelete
		return msg, nil
	case tag == "message":
		msg.op = opMessage
		return msg, nil
	case strings.HasPrefix(tag, "def"):
		msg.op = opDefine
	case strings.HasPrefix(tag, "set"):
		msg.op = opSet
	default:
		return nil, nil
	}

	if raw.Device == "" || raw.Name == "" {
		return nil, fmt.Errorf("%w: %s without device or name", ErrInvalidMessage, tag)
	}

	base := Vector{
		Device:    raw.Device,
		Name:      raw.Name,
		Label:     raw.Label,
		Group:     raw.Group,
		Perm:      Perm(raw.Perm),
		State:     State(raw.State),
		Timestamp: raw.Timestamp,
	}
	if raw.Timeout != "" {
		if t, err := strconv.ParseFloat(raw.Timeout, 64); err == nil {
			base.Timeout = t
		}
	}

	var err error
	switch strings.TrimPrefix(strings.TrimPrefix(tag, "def"), "set") {
	case "NumberVector":
		msg.prop, err = convertNumbers(base, raw.Elements)
	case "SwitchVector":
		msg.prop = convertSwitches(base, SwitchRule(raw.Rule), raw.Elements)
	case "TextVector":
		msg.prop = convertTexts(base, raw.Elements)
	case "BLOBVector":
		msg.prop, err = convertBlobs(base, raw.Elements)
	case "LightVector":
		msg.prop = convertLights(base, raw.Elements)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func convertNumbers(base Vector, elems []xmlElement) (*NumberVector, error) {
	v := &NumberVector{Vector: base, Numbers: make([]Number, 0, len(elems))}
	for _, e := range elems {
		n := Number{Name: e.Name, Label: e.Label, Format: e.Format}
		var err error
		if n.Value, err = ParseNumber(e.Value); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", base.Name, e.Name, err)
		}
		// min/max/step are only present on definitions.
		if e.Min != "" {
			n.Min, _ = ParseNumber(e.Min)
		}
		if e.Max != "" {
			n.Max, _ = ParseNumber(e.Max)
		}
		if e.Step != "" {
			n.Step, _ = ParseNumber(e.Step)
		}
		v.Numbers = append(v.Numbers, n)
	}
	return v, nil
}

func convertSwitches(base Vector, rule SwitchRule, elems []xmlElement) *SwitchVector {
	v := &SwitchVector{Vector: base, Rule: rule, Switches: make([]Switch, 0, len(elems))}
	for _, e := range elems {
		v.Switches = append(v.Switches, Switch{
			Name:  e.Name,
			Label: e.Label,
			On:    strings.TrimSpace(e.Value) == "On",
		})
	}
	return v
}

func convertTexts(base Vector, elems []xmlElement) *TextVector {
	v := &TextVector{Vector: base, Texts: make([]Text, 0, len(elems))}
	for _, e := range elems {
		v.Texts = append(v.Texts, Text{Name: e.Name, Label: e.Label, Value: strings.TrimSpace(e.Value)})
	}
	return v
}

func convertLights(base Vector, elems []xmlElement) *LightVector {
	v := &LightVector{Vector: base, Lights: make(map[string]State, len(elems))}
	for _, e := range elems {
		v.Lights[e.Name] = State(strings.TrimSpace(e.Value))
	}
	return v
}

func convertBlobs(base Vector, elems []xmlElement) (*BlobVector, error) {
	v := &BlobVector{Vector: base, Blobs: make([]Blob, 0, len(elems))}
	for _, e := range elems {
		b := Blob{Name: e.Name, Label: e.Label, Format: e.Format}
		if e.Size != "" {
			size, err := strconv.Atoi(strings.TrimSpace(e.Size))
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s size %q", ErrInvalidMessage, base.Name, e.Name, e.Size)
			}
			b.Size = size
		}
		if b.Size > 0 {
			data, format, err := decodeBlob(e.Value, e.Format, b.Size)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", base.Name, e.Name, err)
			}
			b.Data = data
			b.Format = format
			b.Size = len(data)
		}
		v.Blobs = append(v.Blobs, b)
	}
	return v, nil
}

// decodeBlob decodes a base64 payload and inflates it when the format
// carries the compressed suffix. size is the declared uncompressed length and
// bounds inflation. It returns the payload and the effective format.
func decodeBlob(encoded, format string, size int) ([]byte, string, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, format, fmt.Errorf("%w: base64: %w", ErrInvalidMessage, err)
	}

	if !strings.HasSuffix(format, compressedSuffix) {
		return data, format, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, format, fmt.Errorf("%w: zlib: %w", ErrInvalidMessage, err)
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
	if err != nil {
		return nil, format, fmt.Errorf("%w: zlib: %w", ErrInvalidMessage, err)
	}
	if len(inflated) > size {
		return nil, format, fmt.Errorf("%w: inflated payload exceeds declared size %d", ErrInvalidMessage, size)
	}
	return inflated, strings.TrimSuffix(format, compressedSuffix), nil
}

// Outbound messages.

type xmlNewVector struct {
	XMLName   xml.Name
	Device    string   `xml:"device,attr"`
	Name      string   `xml:"name,attr"`
	Timestamp string   `xml:"timestamp,attr,omitempty"`
	Elements  []xmlOne `xml:",any"`
}

type xmlOne struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Value   string `xml:",chardata"`
}

type xmlGetProperties struct {
	XMLName xml.Name `xml:"getProperties"`
	Version string   `xml:"version,attr"`
	Device  string   `xml:"device,attr,omitempty"`
	Name    string   `xml:"name,attr,omitempty"`
}

type xmlEnableBLOB struct {
	XMLName xml.Name `xml:"enableBLOB"`
	Device  string   `xml:"device,attr"`
	Name    string   `xml:"name,attr,omitempty"`
	Mode    BlobMode `xml:",chardata"`
}

func timestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

func encodeNewNumber(device string, v *NumberVector) ([]byte, error) {
	msg := xmlNewVector{
		XMLName:   xml.Name{Local: "newNumberVector"},
		Device:    device,
		Name:      v.Name,
		Timestamp: timestamp(),
	}
	for _, n := range v.Numbers {
		msg.Elements = append(msg.Elements, xmlOne{
			XMLName: xml.Name{Local: "oneNumber"},
			Name:    n.Name,
			Value:   FormatNumber(n.Value),
		})
	}
	return xml.Marshal(msg)
}

func encodeNewSwitch(device string, v *SwitchVector) ([]byte, error) {
	msg := xmlNewVector{
		XMLName:   xml.Name{Local: "newSwitchVector"},
		Device:    device,
		Name:      v.Name,
		Timestamp: timestamp(),
	}
	for _, s := range v.Switches {
		state := "Off"
		if s.On {
			state = "On"
		}
		msg.Elements = append(msg.Elements, xmlOne{
			XMLName: xml.Name{Local: "oneSwitch"},
			Name:    s.Name,
			Value:   state,
		})
	}
	return xml.Marshal(msg)
}

func encodeNewText(device string, v *TextVector) ([]byte, error) {
	msg := xmlNewVector{
		XMLName:   xml.Name{Local: "newTextVector"},
		Device:    device,
		Name:      v.Name,
		Timestamp: timestamp(),
	}
	for _, t := range v.Texts {
		msg.Elements = append(msg.Elements, xmlOne{
			XMLName: xml.Name{Local: "oneText"},
			Name:    t.Name,
			Value:   t.Value,
		})
	}
	return xml.Marshal(msg)
}

func encodeGetProperties(device string) ([]byte, error) {
	return xml.Marshal(xmlGetProperties{Version: protocolVersion, Device: device})
}

func encodeEnableBLOB(device, property string, mode BlobMode) ([]byte, error) {
	return xml.Marshal(xmlEnableBLOB{Device: device, Name: property, Mode: mode})
}
