package preview

import (
	"bytes"
	"fmt"
	"image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
)

// Options configures a Store.
type Options struct {
	// Dispatch runs device callbacks. It defaults to calling fn inline.
	Dispatch func(device string, fn func())

	// Now defaults to time.Now.
	Now func() time.Time
}

// Tab describes one viewer tab.
type Tab struct {
	ID       int       `json:"id"`
	Title    string    `json:"title"`
	Mode     string    `json:"mode"`
	Filter   string    `json:"filter,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Format   string    `json:"format"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Updated  time.Time `json:"updated"`
}

// StreamInfo describes a device's stream display.
type StreamInfo struct {
	Enabled bool      `json:"enabled"`
	Visible bool      `json:"visible"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Format  string    `json:"format,omitempty"`
	Frames  int       `json:"frames"`
	Updated time.Time `json:"updated,omitzero"`
}

// Store holds the display state of every device.
type Store struct {
	mu       sync.RWMutex
	viewers  map[string]*viewer
	streams  map[string]*stream
	views    map[string]*view // key: device/chip/mode
	dispatch func(device string, fn func())
	now      func() time.Time
}

var _ ccd.Displays = (*Store)(nil)

// New creates an empty store.
func New(opts Options) *Store {
	s := &Store{
		viewers:  make(map[string]*viewer),
		streams:  make(map[string]*stream),
		views:    make(map[string]*view),
		dispatch: opts.Dispatch,
		now:      opts.Now,
	}
	if s.dispatch == nil {
		s.dispatch = func(_ string, fn func()) { fn() }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewViewer returns the viewer of a device, creating it on first use.
func (s *Store) NewViewer(device string) ccd.Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.viewers[device]; ok {
		return v
	}
	v := &viewer{store: s, device: device, tabs: make(map[int]*view), nextID: 1}
	s.viewers[device] = v
	return v
}

// NewStream returns the stream display of a device, creating it on first use.
func (s *Store) NewStream(device string) ccd.StreamDisplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[device]; ok {
		return st
	}
	st := &stream{store: s, device: device}
	s.streams[device] = st
	return st
}

// NewChipView returns the view of a chip for a dedicated capture mode.
func (s *Store) NewChipView(device string, chip ccd.ChipType, mode ccd.CaptureMode) ccd.View {
	key := chipViewKey(device, chip.String(), mode.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.views[key]; ok {
		return v
	}
	v := &view{store: s, title: chip.String() + " " + mode.String(), mode: mode.String()}
	s.views[key] = v
	return v
}

func chipViewKey(device, chip, mode string) string {
	return device + "/" + chip + "/" + mode
}

// Devices returns the names of devices with any display, sorted.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for name := range s.viewers {
		seen[name] = true
	}
	for name := range s.streams {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tabs lists the viewer tabs of a device in id order.
func (s *Store) Tabs(device string) ([]Tab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.viewers[device]
	if !ok {
		return nil, fmt.Errorf("%w: viewer for %q", ErrNotFound, device)
	}
	tabs := make([]Tab, 0, len(v.tabs))
	for id, tv := range v.tabs {
		tabs = append(tabs, tv.info(id))
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].ID < tabs[j].ID })
	return tabs, nil
}

// TabPNG renders a viewer tab as PNG.
func (s *Store) TabPNG(device string, tab int) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.viewers[device]
	var tv *view
	if ok {
		tv = v.tabs[tab]
	}
	var data *imaging.Data
	if tv != nil {
		data = tv.data
	}
	s.mu.RUnlock()

	if tv == nil {
		return nil, fmt.Errorf("%w: tab %d of %q", ErrNotFound, tab, device)
	}
	return encodePNG(data)
}

// ChipViewPNG renders the view of a chip mode as PNG.
func (s *Store) ChipViewPNG(device, chip, mode string) ([]byte, error) {
	s.mu.RLock()
	v, ok := s.views[chipViewKey(device, chip, mode)]
	var data *imaging.Data
	if ok {
		data = v.data
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s view of %q", ErrNotFound, mode, device)
	}
	return encodePNG(data)
}

// CloseTab removes a tab and runs the viewer's close callback on the
// device's dispatch goroutine.
func (s *Store) CloseTab(device string, tab int) error {
	s.mu.Lock()
	v, ok := s.viewers[device]
	if !ok || v.tabs[tab] == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: tab %d of %q", ErrNotFound, tab, device)
	}
	delete(v.tabs, tab)
	cb := v.onClosed
	s.mu.Unlock()

	if cb != nil {
		s.dispatch(device, func() { cb(tab) })
	}
	return nil
}

// Stream returns the state of a device's stream display.
func (s *Store) Stream(device string) (StreamInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[device]
	if !ok {
		return StreamInfo{}, fmt.Errorf("%w: stream of %q", ErrNotFound, device)
	}
	return StreamInfo{
		Enabled: st.enabled,
		Visible: st.visible,
		Width:   st.width,
		Height:  st.height,
		Format:  st.format,
		Frames:  st.frames,
		Updated: st.updated,
	}, nil
}

// LatestFrame returns a copy of the last stream frame and its format.
func (s *Store) LatestFrame(device string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[device]
	if !ok || st.frame == nil {
		return nil, "", fmt.Errorf("%w: frame of %q", ErrNotFound, device)
	}
	return bytes.Clone(st.frame), st.format, nil
}

// HideStream hides a device's stream display and runs its hidden callback
// on the device's dispatch goroutine.
func (s *Store) HideStream(device string) error {
	s.mu.Lock()
	st, ok := s.streams[device]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: stream of %q", ErrNotFound, device)
	}
	st.visible = false
	cb := st.onHidden
	s.mu.Unlock()

	if cb != nil {
		s.dispatch(device, cb)
	}
	return nil
}

// Forget drops every display of a device.
func (s *Store) Forget(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.viewers, device)
	delete(s.streams, device)
	prefix := device + "/"
	for key := range s.views {
		if strings.HasPrefix(key, prefix) {
			delete(s.views, key)
		}
	}
}

func encodePNG(data *imaging.Data) ([]byte, error) {
	if data == nil || data.Image == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, data.Image); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
