package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store. Listeners run on a writer's goroutine after the
// write is applied, one call per changed collection. Each listener sees snapshots
// in write order; one older than what it already got is dropped.
type Memory struct {
	mu        sync.Mutex
	data      map[string]map[string]json.RawMessage
	listeners map[string]map[int]*memListener
	seq       map[string]uint64
	nextID    int
	broken    error
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data:      make(map[string]map[string]json.RawMessage),
		listeners: make(map[string]map[int]*memListener),
		seq:       make(map[string]uint64),
		now:       time.Now,
	}
}

// Break makes every following call fail with err and silences listeners,
// the way an unreachable backend behaves. Break(nil) restores the store.
func (m *Memory) Break(err error) {
	m.mu.Lock()
	m.broken = err
	m.mu.Unlock()
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn Listener) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return nil, m.broken
	}
	id := m.nextID
	m.nextID++
	if m.listeners[path] == nil {
		m.listeners[path] = make(map[int]*memListener)
	}
	l := &memListener{fn: fn}
	m.listeners[path][id] = l
	seq := m.seq[path]
	snap := m.snapshotLocked(path)
	m.mu.Unlock()

	l.deliver(seq, snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners[path], id)
			if len(m.listeners[path]) == 0 {
				delete(m.listeners, path)
			}
			m.mu.Unlock()
		})
	}, nil
}

// Listeners reports how many listeners are registered on path.
func (m *Memory) Listeners(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[path])
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken != nil {
		return Snapshot{}, m.broken
	}
	return m.snapshotLocked(path), nil
}

func (m *Memory) GetChild(ctx context.Context, path string) (json.RawMessage, error) {
	coll, key, err := Split(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken != nil {
		return nil, m.broken
	}
	v, ok := m.data[coll][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), v...), nil
}

func (m *Memory) Push(ctx context.Context, path string, value any) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	key := NewKey(m.now())

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return "", m.broken
	}
	m.putLocked(path, key, raw)
	notify := m.pendingLocked(path)
	m.mu.Unlock()

	notify()
	return key, nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	coll, key, err := Split(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return m.broken
	}
	m.putLocked(coll, key, raw)
	notify := m.pendingLocked(coll)
	m.mu.Unlock()

	notify()
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]any) error {
	return m.MultiUpdate(ctx, map[string]map[string]any{path: fields})
}

func (m *Memory) MultiUpdate(ctx context.Context, updates map[string]map[string]any) error {
	type target struct {
		coll, key string
		fields    map[string]any
	}
	targets := make([]target, 0, len(updates))
	for path, fields := range updates {
		coll, key, err := Split(path)
		if err != nil {
			return err
		}
		targets = append(targets, target{coll, key, fields})
	}

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return m.broken
	}
	merged := make([]json.RawMessage, len(targets))
	for i, t := range targets {
		raw, err := Merge(m.data[t.coll][t.key], t.fields)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		merged[i] = raw
	}
	changed := map[string]struct{}{}
	for i, t := range targets {
		m.putLocked(t.coll, t.key, merged[i])
		changed[t.coll] = struct{}{}
	}
	var notifies []func()
	for coll := range changed {
		notifies = append(notifies, m.pendingLocked(coll))
	}
	m.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	coll, key, err := Split(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return m.broken
	}
	delete(m.data[coll], key)
	if len(m.data[coll]) == 0 {
		delete(m.data, coll)
	}
	notify := m.pendingLocked(coll)
	m.mu.Unlock()

	notify()
	return nil
}

func (m *Memory) Increment(ctx context.Context, path string, delta int64) (int64, error) {
	coll, key, err := Split(path)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.broken != nil {
		m.mu.Unlock()
		return 0, m.broken
	}
	var current int64
	if raw, ok := m.data[coll][key]; ok {
		current, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			m.mu.Unlock()
			return 0, ErrNotObject
		}
	}
	current += delta
	m.putLocked(coll, key, json.RawMessage(strconv.FormatInt(current, 10)))
	notify := m.pendingLocked(coll)
	m.mu.Unlock()

	notify()
	return current, nil
}

func (m *Memory) Collections(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken != nil {
		return nil, m.broken
	}
	var out []string
	for coll := range m.data {
		if strings.HasPrefix(coll, prefix) {
			out = append(out, coll)
		}
	}
	return out, nil
}

func (m *Memory) putLocked(coll, key string, raw json.RawMessage) {
	if m.data[coll] == nil {
		m.data[coll] = make(map[string]json.RawMessage)
	}
	m.data[coll][key] = raw
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	snap := Snapshot{Path: path}
	for k, v := range m.data[path] {
		snap.Children = append(snap.Children, Child{Key: k, Value: append(json.RawMessage(nil), v...)})
	}
	sortChildren(snap.Children)
	return snap
}

// pendingLocked stamps a change of coll and captures its listeners with the
// snapshot they should see. The returned func must be called after m.mu is released.
func (m *Memory) pendingLocked(coll string) func() {
	m.seq[coll]++
	if len(m.listeners[coll]) == 0 {
		return func() {}
	}
	seq := m.seq[coll]
	snap := m.snapshotLocked(coll)
	ls := make([]*memListener, 0, len(m.listeners[coll]))
	for _, l := range m.listeners[coll] {
		ls = append(ls, l)
	}
	return func() {
		for _, l := range ls {
			l.deliver(seq, snap)
		}
	}
}

type memListener struct {
	fn Listener

	mu       sync.Mutex
	started  bool
	last     uint64
	queue    []Snapshot
	draining bool
}

// deliver queues snap unless a newer one was already queued. Whoever finds the
// listener idle drains the queue, so calls to fn never overlap and never go back
// in time. fn runs without l.mu held and may write to the store.
func (l *memListener) deliver(seq uint64, snap Snapshot) {
	l.mu.Lock()
	if l.started && seq <= l.last {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.last = seq
	l.queue = append(l.queue, snap)
	if l.draining {
		l.mu.Unlock()
		return
	}

	l.draining = true
	for len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.fn(next)
		l.mu.Lock()
	}
	l.draining = false
	l.mu.Unlock()
}
