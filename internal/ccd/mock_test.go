package ccd

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/imaging"
	"github.com/nerrad567/gray-logic-indi/internal/indi"
)

// fakeProperties is an in-memory property directory that records sends.
type fakeProperties struct {
	name      string
	numbers   map[string]*indi.NumberVector
	switches  map[string]*indi.SwitchVector
	texts     map[string]*indi.TextVector
	blobs     map[string]*indi.BlobVector
	blobModes map[string]indi.BlobMode
	connected bool

	sentNumbers  []*indi.NumberVector
	sentSwitches []*indi.SwitchVector
	sentTexts    []*indi.TextVector
	sendErr      error
}

func newFakeProperties(name string) *fakeProperties {
	return &fakeProperties{
		name:      name,
		numbers:   make(map[string]*indi.NumberVector),
		switches:  make(map[string]*indi.SwitchVector),
		texts:     make(map[string]*indi.TextVector),
		blobs:     make(map[string]*indi.BlobVector),
		blobModes: make(map[string]indi.BlobMode),
	}
}

func (p *fakeProperties) Name() string                          { return p.name }
func (p *fakeProperties) Number(name string) *indi.NumberVector { return p.numbers[name] }
func (p *fakeProperties) Switch(name string) *indi.SwitchVector { return p.switches[name] }
func (p *fakeProperties) Text(name string) *indi.TextVector     { return p.texts[name] }
func (p *fakeProperties) Blob(name string) *indi.BlobVector     { return p.blobs[name] }
func (p *fakeProperties) IsConnected() bool                     { return p.connected }

func (p *fakeProperties) BlobEnabled(property string) bool {
	mode, ok := p.blobModes[property]
	return ok && mode != indi.BlobNever
}

func (p *fakeProperties) SendNumber(v *indi.NumberVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentNumbers = append(p.sentNumbers, v.Clone())
	return nil
}

func (p *fakeProperties) SendSwitch(v *indi.SwitchVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentSwitches = append(p.sentSwitches, v.Clone())
	return nil
}

func (p *fakeProperties) SendText(v *indi.TextVector) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sentTexts = append(p.sentTexts, v.Clone())
	return nil
}

func (p *fakeProperties) SetBlobMode(mode indi.BlobMode, property string) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.blobModes[property] = mode
	return nil
}

func (p *fakeProperties) sends() int {
	return len(p.sentNumbers) + len(p.sentSwitches) + len(p.sentTexts)
}

func (p *fakeProperties) addNumber(name string, perm indi.Perm, numbers ...indi.Number) *indi.NumberVector {
	v := &indi.NumberVector{
		Vector:  indi.Vector{Device: p.name, Name: name, Perm: perm, State: indi.StateIdle},
		Numbers: numbers,
	}
	p.numbers[name] = v
	return v
}

func (p *fakeProperties) addSwitch(name string, perm indi.Perm, switches ...indi.Switch) *indi.SwitchVector {
	v := &indi.SwitchVector{
		Vector:   indi.Vector{Device: p.name, Name: name, Perm: perm, State: indi.StateIdle},
		Rule:     indi.RuleOneOfMany,
		Switches: switches,
	}
	p.switches[name] = v
	return v
}

func (p *fakeProperties) addText(name string, perm indi.Perm, texts ...indi.Text) *indi.TextVector {
	v := &indi.TextVector{
		Vector: indi.Vector{Device: p.name, Name: name, Perm: perm, State: indi.StateIdle},
		Texts:  texts,
	}
	p.texts[name] = v
	return v
}

func (p *fakeProperties) addBlob(name string, perm indi.Perm, elements ...string) *indi.BlobVector {
	v := &indi.BlobVector{Vector: indi.Vector{Device: p.name, Name: name, Perm: perm}}
	for _, e := range elements {
		v.Blobs = append(v.Blobs, indi.Blob{Name: e})
	}
	for i := range v.Blobs {
		v.Blobs[i].Vector = v
	}
	p.blobs[name] = v
	return v
}

// frameVector defines a 0..1280 x 0..1024 frame at full size.
func (p *fakeProperties) frameVector(name string) *indi.NumberVector {
	return p.addNumber(name, indi.PermRW,
		indi.Number{Name: elemX, Min: 0, Max: 1279, Value: 0},
		indi.Number{Name: elemY, Min: 0, Max: 1023, Value: 0},
		indi.Number{Name: elemWidth, Min: 1, Max: 1280, Value: 1280},
		indi.Number{Name: elemHeight, Min: 1, Max: 1024, Value: 1024},
	)
}

// recorder collects events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) kinds() []EventKind {
	events := r.all()
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (r *recorder) find(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls until an event of kind arrives.
func (r *recorder) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := r.find(kind); len(evs) > 0 {
			return evs[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event", kind)
	return Event{}
}

// fakeDecoder returns a fixed result.
type fakeDecoder struct {
	err     error
	img     image.Image
	formats []string
}

func (f *fakeDecoder) Decode(data []byte, format string) (*imaging.Data, error) {
	f.formats = append(f.formats, format)
	if f.err != nil {
		return nil, f.err
	}
	return &imaging.Data{Format: format, Width: 4, Height: 2, Size: len(data), Image: f.img}, nil
}

var errDecode = errors.New("bad payload")

// fakeView records loads.
type fakeView struct {
	filter string
	loaded []*imaging.Data
	err    error
}

func (v *fakeView) SetFilter(filter string) { v.filter = filter }

func (v *fakeView) Load(data *imaging.Data) error {
	if v.err != nil {
		return v.err
	}
	v.loaded = append(v.loaded, data)
	return nil
}

// fakeViewer hands out increasing tab ids.
type fakeViewer struct {
	tabs     map[int]*fakeView
	titles   []string
	updates  int
	onClosed func(int)
	raised   int
}

func (v *fakeViewer) Load(data *imaging.Data, _ CaptureMode, filter, title string) (int, error) {
	id := len(v.tabs)
	view := &fakeView{}
	view.SetFilter(filter)
	if err := view.Load(data); err != nil {
		return -1, err
	}
	v.tabs[id] = view
	v.titles = append(v.titles, title)
	return id, nil
}

func (v *fakeViewer) Update(data *imaging.Data, tab int, filter string) (int, error) {
	view, ok := v.tabs[tab]
	if !ok {
		return -1, errors.New("no such tab")
	}
	v.updates++
	view.SetFilter(filter)
	return tab, view.Load(data)
}

func (v *fakeViewer) View(tab int) View {
	if view, ok := v.tabs[tab]; ok {
		return view
	}
	return nil
}

func (v *fakeViewer) OnClosed(fn func(int)) { v.onClosed = fn }
func (v *fakeViewer) Show()                 {}
func (v *fakeViewer) Raise()                { v.raised++ }

// fakeStream records frames.
type fakeStream struct {
	width, height int
	enabled       bool
	shown         bool
	closed        bool
	frames        [][]byte
	onHidden      func()
	onFrame       func([]byte)
}

func (s *fakeStream) SetSize(w, h int) { s.width, s.height = w, h }
func (s *fakeStream) Enable(on bool)   { s.enabled = on }
func (s *fakeStream) Enabled() bool    { return s.enabled }
func (s *fakeStream) Show()            { s.shown = true }
func (s *fakeStream) Close()           { s.closed = true }
func (s *fakeStream) NewFrame(data []byte, _ string) {
	s.frames = append(s.frames, append([]byte(nil), data...))
}
func (s *fakeStream) OnHidden(fn func())      { s.onHidden = fn }
func (s *fakeStream) OnFrame(fn func([]byte)) { s.onFrame = fn }

// fakeDisplays creates fake surfaces and keeps them for inspection.
type fakeDisplays struct {
	viewer *fakeViewer
	stream *fakeStream
	views  map[ChipType]map[CaptureMode]*fakeView
}

func newFakeDisplays() *fakeDisplays {
	return &fakeDisplays{views: make(map[ChipType]map[CaptureMode]*fakeView)}
}

func (f *fakeDisplays) NewViewer(string) Viewer {
	f.viewer = &fakeViewer{tabs: make(map[int]*fakeView)}
	return f.viewer
}

func (f *fakeDisplays) NewStream(string) StreamDisplay {
	f.stream = &fakeStream{}
	return f.stream
}

func (f *fakeDisplays) NewChipView(_ string, chip ChipType, mode CaptureMode) View {
	if f.views[chip] == nil {
		f.views[chip] = make(map[CaptureMode]*fakeView)
	}
	v := &fakeView{}
	f.views[chip][mode] = v
	return v
}

// fakeMedia records connection attempts.
type fakeMedia struct {
	urls         []string
	disconnected int
}

func (m *fakeMedia) Connect(_ context.Context, url string) error {
	m.urls = append(m.urls, url)
	return nil
}

func (m *fakeMedia) Disconnect() { m.disconnected++ }

// harness bundles a device with its fakes.
type harness struct {
	dev      *Device
	props    *fakeProperties
	events   *recorder
	decoder  *fakeDecoder
	displays *fakeDisplays
	media    *fakeMedia
}

var testTime = time.Date(2026, 3, 14, 21, 30, 5, 0, time.UTC)

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		props:    newFakeProperties("CCD Simulator"),
		events:   &recorder{},
		decoder:  &fakeDecoder{},
		displays: newFakeDisplays(),
		media:    &fakeMedia{},
	}
	if opts.TempDirectory == "" {
		opts.TempDirectory = t.TempDir()
	}
	dev, err := NewDevice(Config{
		Properties: h.props,
		Decoder:    h.decoder,
		Notifier:   h.events,
		Displays:   h.displays,
		Media:      h.media,
		Options:    opts,
		Now:        func() time.Time { return testTime },
	})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	t.Cleanup(dev.Close)
	h.dev = dev
	return h
}

// define stores p in the fake directory's view and announces it.
func (h *harness) define(p indi.Property) {
	h.dev.PropertyDefined(p)
}
