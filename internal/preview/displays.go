package preview

import (
	"bytes"
	"time"

	"github.com/nerrad567/gray-logic-indi/internal/ccd"
	"github.com/nerrad567/gray-logic-indi/internal/imaging"
)

// view holds one image. It backs both viewer tabs and chip views.
type view struct {
	store   *Store
	title   string
	mode    string
	filter  string
	data    *imaging.Data
	updated time.Time
}

var _ ccd.View = (*view)(nil)

func (v *view) SetFilter(filter string) {
	v.store.mu.Lock()
	v.filter = filter
	v.store.mu.Unlock()
}

func (v *view) Load(data *imaging.Data) error {
	if data == nil {
		return ErrNilData
	}
	v.store.mu.Lock()
	v.data = data
	v.updated = v.store.now()
	v.store.mu.Unlock()
	return nil
}

// info must be called with the store lock held.
func (v *view) info(id int) Tab {
	t := Tab{ID: id, Title: v.title, Mode: v.mode, Filter: v.filter, Updated: v.updated}
	if v.data != nil {
		t.Filename = v.data.Filename
		t.Format = v.data.Format
		t.Width = v.data.Width
		t.Height = v.data.Height
	}
	return t
}

// viewer is a device's tabbed viewer.
type viewer struct {
	store    *Store
	device   string
	tabs     map[int]*view
	nextID   int
	onClosed func(tab int)
	visible  bool
}

var _ ccd.Viewer = (*viewer)(nil)

func (v *viewer) Load(data *imaging.Data, mode ccd.CaptureMode, filter, title string) (int, error) {
	if data == nil {
		return -1, ErrNilData
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	id := v.nextID
	v.nextID++
	if title == "" {
		title = data.Filename
	}
	v.tabs[id] = &view{
		store:   v.store,
		title:   title,
		mode:    mode.String(),
		filter:  filter,
		data:    data,
		updated: v.store.now(),
	}
	return id, nil
}

func (v *viewer) Update(data *imaging.Data, tab int, filter string) (int, error) {
	if data == nil {
		return -1, ErrNilData
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	tv, ok := v.tabs[tab]
	if !ok {
		return -1, ErrNotFound
	}
	tv.data = data
	tv.filter = filter
	tv.updated = v.store.now()
	return tab, nil
}

func (v *viewer) View(tab int) ccd.View {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	if tv, ok := v.tabs[tab]; ok {
		return tv
	}
	return nil
}

func (v *viewer) OnClosed(fn func(tab int)) {
	v.store.mu.Lock()
	v.onClosed = fn
	v.store.mu.Unlock()
}

func (v *viewer) Show() {
	v.store.mu.Lock()
	v.visible = true
	v.store.mu.Unlock()
}

// Raise has nothing to bring forward in a headless store.
func (v *viewer) Raise() { v.Show() }

// stream is a device's live video display.
type stream struct {
	store    *Store
	device   string
	width    int
	height   int
	enabled  bool
	visible  bool
	frame    []byte
	format   string
	frames   int
	updated  time.Time
	onHidden func()
	onFrame  func(frame []byte)
}

var _ ccd.StreamDisplay = (*stream)(nil)

func (st *stream) SetSize(width, height int) {
	st.store.mu.Lock()
	st.width, st.height = width, height
	st.store.mu.Unlock()
}

func (st *stream) Enable(on bool) {
	st.store.mu.Lock()
	st.enabled = on
	st.store.mu.Unlock()
}

func (st *stream) Enabled() bool {
	st.store.mu.RLock()
	defer st.store.mu.RUnlock()
	return st.enabled
}

func (st *stream) Show() {
	st.store.mu.Lock()
	st.visible = true
	st.store.mu.Unlock()
}

func (st *stream) Close() {
	st.store.mu.Lock()
	st.visible = false
	st.enabled = false
	st.frame = nil
	st.onHidden = nil
	st.onFrame = nil
	if st.store.streams[st.device] == st {
		delete(st.store.streams, st.device)
	}
	st.store.mu.Unlock()
}

// NewFrame keeps a copy of the frame and passes it to the frame callback.
// Frames arriving while the display is disabled are dropped.
func (st *stream) NewFrame(data []byte, format string) {
	st.store.mu.Lock()
	if !st.enabled {
		st.store.mu.Unlock()
		return
	}
	frame := bytes.Clone(data)
	st.frame = frame
	st.format = format
	st.frames++
	st.updated = st.store.now()
	cb := st.onFrame
	st.store.mu.Unlock()

	if cb != nil {
		cb(frame)
	}
}

func (st *stream) OnHidden(fn func()) {
	st.store.mu.Lock()
	st.onHidden = fn
	st.store.mu.Unlock()
}

func (st *stream) OnFrame(fn func(frame []byte)) {
	st.store.mu.Lock()
	st.onFrame = fn
	st.store.mu.Unlock()
}
