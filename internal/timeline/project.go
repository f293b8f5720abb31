// Package timeline plays back an authored Theatre.js project state.
//
// A Project holds sheets; each sheet has one Sequence and a set of Objects.
// Objects declare their props with defaults, and subscribers receive the
// full value set of the object whenever the sequence position or the
// project state changes it. Notification is synchronous: when SetPosition
// returns every subscriber has seen the values for that position.
//
// Nothing here is safe for concurrent use. The caller runs all timeline
// calls on a single control goroutine.
package timeline

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

type Project struct {
	ID     string
	state  *State
	sheets map[string]*Sheet
	logger *slog.Logger
}

// NewProject creates a project from an authored state. A nil state plays
// every object at its defaults.
func NewProject(id string, state *State, logger *slog.Logger) *Project {
	if state == nil {
		state = &State{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Project{ID: id, state: state, sheets: map[string]*Sheet{}, logger: logger}
}

// Sheet returns the named sheet, creating it on first use.
func (p *Project) Sheet(name string) *Sheet {
	if s, ok := p.sheets[name]; ok {
		return s
	}
	s := &Sheet{project: p, name: name, objects: map[string]*Object{}}
	s.sequence = &Sequence{sheet: s}
	s.sequence.load(p.sheetState(name).Sequence)
	p.sheets[name] = s
	return s
}

func (p *Project) sheetState(name string) SheetState {
	if p.state.SheetsByID == nil {
		return SheetState{}
	}
	return p.state.SheetsByID[name]
}

// Reload swaps in a new authored state, keeping sheets, objects,
// subscriptions and the playhead. Subscribers whose values change are
// notified before Reload returns.
func (p *Project) Reload(state *State) {
	if state == nil {
		state = &State{}
	}
	p.state = state
	names := make([]string, 0, len(p.sheets))
	for name := range p.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := p.sheets[name]
		s.sequence.load(p.sheetState(name).Sequence)
		for _, key := range s.order {
			s.objects[key].load()
		}
		s.sequence.clampPosition()
		s.notify()
	}
}

type Sheet struct {
	project  *Project
	name     string
	sequence *Sequence
	objects  map[string]*Object
	order    []string
}

func (s *Sheet) Name() string { return s.name }

func (s *Sheet) Sequence() *Sequence { return s.sequence }

// Object declares an animatable object. Keys are unique within a sheet;
// declaring the same key twice is an error since rebinding is not
// supported.
func (s *Sheet) Object(key string, props Compound) (*Object, error) {
	if _, ok := s.objects[key]; ok {
		return nil, fmt.Errorf("sheet %q: object %q already declared", s.name, key)
	}
	o := &Object{sheet: s, key: key, props: props, subs: map[int]Handler{}}
	o.load()
	s.objects[key] = o
	s.order = append(s.order, key)
	return o, nil
}

// Objects lists the declared object keys in declaration order.
func (s *Sheet) Objects() []string {
	return append([]string(nil), s.order...)
}

func (s *Sheet) notify() {
	for _, key := range s.order {
		s.objects[key].update()
	}
}

// Sequence is the playhead of a sheet, in seconds.
type Sequence struct {
	sheet           *Sheet
	length          float64
	subUnitsPerUnit int
	position        float64
	playing         bool
}

func (q *Sequence) load(st *SequenceState) {
	q.length = DefaultLength
	q.subUnitsPerUnit = 30
	if st == nil {
		return
	}
	if st.Length > 0 {
		q.length = st.Length
	}
	if st.SubUnitsPerUnit > 0 {
		q.subUnitsPerUnit = st.SubUnitsPerUnit
	}
}

// Length is the authored sequence length in seconds.
func (q *Sequence) Length() float64 { return q.length }

// SubUnitsPerUnit is the editor's snapping resolution (frames per second).
func (q *Sequence) SubUnitsPerUnit() int { return q.subUnitsPerUnit }

func (q *Sequence) Position() float64 { return q.position }

// SetPosition moves the playhead, clamped to [0, Length], and notifies
// every changed object of its sheet before returning.
func (q *Sequence) SetPosition(t float64) {
	q.position = t
	q.clampPosition()
	q.sheet.notify()
}

func (q *Sequence) clampPosition() {
	if math.IsNaN(q.position) || q.position < 0 {
		q.position = 0
	}
	if q.position > q.length {
		q.position = q.length
	}
}

// Play starts repeating playback driven by Advance.
func (q *Sequence) Play() { q.playing = true }

func (q *Sequence) Pause() { q.playing = false }

func (q *Sequence) Playing() bool { return q.playing }

// Advance moves a playing sequence forward by dt, wrapping at Length.
func (q *Sequence) Advance(dt time.Duration) {
	if !q.playing || q.length <= 0 {
		return
	}
	q.SetPosition(math.Mod(q.position+dt.Seconds(), q.length))
}

// Handler receives the full value set of an object. It must not fail.
type Handler func(Values)

type Object struct {
	sheet    *Sheet
	key      string
	props    Compound
	defaults Values
	tracks   []*Track
	last     Values
	subs     map[int]Handler
	nextID   int
}

func (o *Object) Key() string { return o.key }

// load rebuilds defaults, static overrides and tracks from the current
// project state. Unknown prop paths are ignored.
func (o *Object) load() {
	logger := o.sheet.project.logger
	o.defaults = Values{}
	o.props.defaults("", o.defaults)

	sheetState := o.sheet.project.sheetState(o.sheet.name)
	if raw, ok := sheetState.StaticOverrides.ByObject[o.key]; ok {
		over, err := flattenOverride(raw)
		if err != nil {
			logger.Warn("ignoring static overrides", "object", o.key, "err", err)
		}
		for k, v := range over {
			if _, known := o.defaults[k]; known {
				o.defaults[k] = v
			}
		}
	}

	o.tracks = nil
	if sheetState.Sequence == nil {
		return
	}
	ots, ok := sheetState.Sequence.TracksByObject[o.key]
	if !ok {
		return
	}
	keys := make([]string, 0, len(ots.TrackIDByPropPath))
	for k := range ots.TrackIDByPropPath {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		path, err := ParsePropPath(key)
		if err != nil {
			logger.Warn("ignoring track", "object", o.key, "err", err)
			continue
		}
		data, ok := ots.TrackData[ots.TrackIDByPropPath[key]]
		if !ok {
			continue
		}
		tr, err := newTrack(path, data)
		if err != nil {
			logger.Warn("ignoring track", "object", o.key, "err", err)
			continue
		}
		o.tracks = append(o.tracks, tr)
	}
}

// Value evaluates the object at the current sequence position.
func (o *Object) Value() Values {
	v := o.defaults.Clone()
	pos := o.sheet.sequence.position
	for _, tr := range o.tracks {
		kv, ok := tr.ValueAt(pos)
		if !ok {
			continue
		}
		for suffix, x := range kv {
			path := tr.Path
			if suffix != "" {
				path += "." + suffix
			}
			if _, known := v[path]; known {
				v[path] = x
			}
		}
	}
	return v
}

// OnValuesChange subscribes h. h is called once immediately with the
// current values, then again whenever they change.
func (o *Object) OnValuesChange(h Handler) *Subscription {
	id := o.nextID
	o.nextID++
	o.subs[id] = h
	if o.last == nil {
		o.last = o.Value()
	}
	h(o.last.Clone())
	return &Subscription{object: o, id: id}
}

func (o *Object) update() {
	v := o.Value()
	if o.last != nil && v.Equal(o.last) {
		return
	}
	o.last = v
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		o.subs[id](v.Clone())
	}
}

// Subscription is the handle returned by OnValuesChange.
type Subscription struct {
	object *Object
	id     int
}

// Close stops notifications. Closing twice is a no-op.
func (s *Subscription) Close() {
	if s == nil || s.object == nil {
		return
	}
	delete(s.object.subs, s.id)
	s.object = nil
}
