package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const recordDepth = 2

type change struct {
	path  Path
	value any
}

// Memory is the in-process Store. All writes are serialized by one lock, so
// every subscriber sees changes in the order they were applied. Records are
// mirrored to the persister by a background writer, outside that lock.
type Memory struct {
	mu        sync.RWMutex
	data      any
	subs      map[uint64]*subscription
	nextSubID uint64
	conns     map[string]map[string]Path
	keys      *KeyGenerator
	persister Persister
	log       *logrus.Entry

	// pmu guards the writer state below.
	pmu       sync.Mutex
	dirty     map[string]Path
	dirtyGen  uint64
	savedGen  uint64
	saved     *sync.Cond
	closed    bool
	wake      chan struct{}
	closing   chan struct{}
	writerWG  sync.WaitGroup
	closeOnce sync.Once
}

// NewMemory returns an empty store. With a non-nil persister it starts the
// writer that mirrors records; call Close to flush and stop it.
func NewMemory(persister Persister) *Memory {
	m := &Memory{
		subs:      make(map[uint64]*subscription),
		conns:     make(map[string]map[string]Path),
		keys:      NewKeyGenerator(nil),
		persister: persister,
		log:       logrus.WithField("component", "store"),
		dirty:     make(map[string]Path),
		wake:      make(chan struct{}, 1),
		closing:   make(chan struct{}),
	}
	m.saved = sync.NewCond(&m.pmu)
	if persister != nil {
		m.writerWG.Add(1)
		go m.runWriter()
	}
	return m
}

// Restore hydrates the tree from the persister. It is meant to run once,
// before any client connects.
func (m *Memory) Restore() (int, error) {
	if m.persister == nil {
		return 0, nil
	}
	records, err := m.persister.LoadRecords()
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, raw := range records {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			m.log.WithError(err).WithField("record", key).Warn("skipping unreadable record")
			continue
		}
		m.data = setIn(m.data, Path(strings.SplitN(key, "/", recordDepth)), prune(v))
	}
	return len(records), nil
}

func (m *Memory) Get(p Path) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Path: p, Value: deepCopy(getIn(m.data, p))}, nil
}

func (m *Memory) Set(p Path, value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", p, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply([]change{{path: p, value: v}})
	return nil
}

// Update sets several children of p in one step. Keys may be relative paths.
func (m *Memory) Update(p Path, values map[string]any) error {
	changes := make([]change, 0, len(values))
	for k, raw := range values {
		v, err := normalize(raw)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", p.Child(k), err)
		}
		changes = append(changes, change{path: p.Child(k), value: v})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(changes)
	return nil
}

func (m *Memory) Remove(p Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply([]change{{path: p}})
	return nil
}

func (m *Memory) Push(p Path, value any) (string, error) {
	v, err := normalize(value)
	if err != nil {
		return "", fmt.Errorf("failed to push to %s: %w", p, err)
	}
	key := m.keys.Next()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply([]change{{path: p.Append(key), value: v}})
	return key, nil
}

func (m *Memory) Transaction(p Path, fn TxFunc) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := getIn(m.data, p)
	next, err := fn(deepCopy(current))
	if errors.Is(err, SkipWrite) {
		return Snapshot{Path: p, Value: deepCopy(current)}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	v, err := normalize(next)
	if err != nil {
		return Snapshot{}, fmt.Errorf("transaction on %s: %w", p, err)
	}
	m.apply([]change{{path: p, value: v}})
	return Snapshot{Path: p, Value: deepCopy(v)}, nil
}

func (m *Memory) Connect(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conns[connID]; !exists {
		m.conns[connID] = make(map[string]Path)
	}
	return nil
}

func (m *Memory) OnDisconnectRemove(connID string, p Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks, exists := m.conns[connID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotConnected, connID)
	}
	hooks[p.String()] = p
	return nil
}

func (m *Memory) CancelOnDisconnect(connID string, p Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks, exists := m.conns[connID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotConnected, connID)
	}
	delete(hooks, p.String())
	return nil
}

// Disconnect forgets the connection and runs its pending hooks as a single
// write.
func (m *Memory) Disconnect(connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks, exists := m.conns[connID]
	if !exists {
		return nil
	}
	delete(m.conns, connID)
	if len(hooks) == 0 {
		return nil
	}
	changes := make([]change, 0, len(hooks))
	for _, p := range hooks {
		changes = append(changes, change{path: p})
	}
	m.log.WithFields(logrus.Fields{"conn_id": connID, "hooks": len(hooks)}).Info("running disconnect hooks")
	m.apply(changes)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, p Path) <-chan Snapshot {
	sub := &subscription{
		path:   p,
		signal: make(chan struct{}, 1),
		out:    make(chan Snapshot),
	}

	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs[id] = sub
	sub.offer(Snapshot{Path: p, Value: deepCopy(getIn(m.data, p))})
	m.mu.Unlock()

	go sub.forward(ctx, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	})
	return sub.out
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Connections:   len(m.conns),
		Subscriptions: len(m.subs),
	}
	stats.Records = len(m.recordsUnder(Path{}))
	for _, hooks := range m.conns {
		stats.Hooks += len(hooks)
	}
	return stats
}

// apply must be called with m.mu held.
func (m *Memory) apply(changes []change) {
	affected := make(map[string]Path)
	for _, c := range changes {
		for _, r := range m.recordsUnder(c.path) {
			affected[r.String()] = r
		}
	}
	for _, c := range changes {
		m.data = setIn(m.data, c.path, c.value)
	}
	for _, c := range changes {
		for _, r := range m.recordsUnder(c.path) {
			affected[r.String()] = r
		}
	}

	m.markDirty(affected)

	for _, sub := range m.subs {
		for _, c := range changes {
			if c.path.Overlaps(sub.path) {
				sub.offer(Snapshot{Path: sub.path, Value: deepCopy(getIn(m.data, sub.path))})
				break
			}
		}
	}
}

// recordsUnder lists the record paths a write at p touches.
func (m *Memory) recordsUnder(p Path) []Path {
	if len(p) >= recordDepth {
		return []Path{p[:recordDepth]}
	}
	var out []Path
	var walk func(node any, at Path)
	walk = func(node any, at Path) {
		if len(at) == recordDepth {
			out = append(out, at)
			return
		}
		children, ok := node.(map[string]any)
		if !ok {
			return
		}
		for k, c := range children {
			walk(c, at.Append(k))
		}
	}
	walk(getIn(m.data, p), append(Path{}, p...))
	return out
}

// markDirty queues records for the writer. It must be called with m.mu held.
func (m *Memory) markDirty(records map[string]Path) {
	if m.persister == nil || len(records) == 0 {
		return
	}
	m.pmu.Lock()
	for key, p := range records {
		m.dirty[key] = p
	}
	m.dirtyGen++
	m.pmu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every write applied before the call has been handed to
// the persister, or the store is closed.
func (m *Memory) Flush() {
	m.pmu.Lock()
	defer m.pmu.Unlock()
	target := m.dirtyGen
	for m.savedGen < target && !m.closed {
		m.saved.Wait()
	}
}

// Close flushes pending records and stops the writer. Writes applied after
// Close are kept in memory only.
func (m *Memory) Close() {
	m.closeOnce.Do(func() {
		close(m.closing)
		m.writerWG.Wait()
		m.pmu.Lock()
		m.closed = true
		m.saved.Broadcast()
		m.pmu.Unlock()
	})
}

func (m *Memory) runWriter() {
	defer m.writerWG.Done()
	for {
		select {
		case <-m.wake:
			m.writeDirty()
		case <-m.closing:
			m.writeDirty()
			return
		}
	}
}

// writeDirty saves the latest value of every queued record. A record changed
// many times between two runs is written once.
func (m *Memory) writeDirty() {
	m.pmu.Lock()
	records, gen := m.dirty, m.dirtyGen
	m.dirty = make(map[string]Path)
	m.pmu.Unlock()

	if len(records) > 0 {
		m.persist(m.encodeRecords(records))
	}

	m.pmu.Lock()
	if gen > m.savedGen {
		m.savedGen = gen
	}
	m.saved.Broadcast()
	m.pmu.Unlock()
}

// encodeRecords snapshots records as JSON; a nil value marks a deleted one.
func (m *Memory) encodeRecords(records map[string]Path) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(records))
	for key, p := range records {
		key = strings.TrimPrefix(key, "/")
		v := getIn(m.data, p)
		if v == nil {
			out[key] = nil
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			m.log.WithError(err).WithField("record", key).Error("failed to encode record")
			continue
		}
		out[key] = raw
	}
	return out
}

func (m *Memory) persist(records map[string][]byte) {
	if bp, ok := m.persister.(BatchPersister); ok {
		if err := bp.ApplyRecords(records); err != nil {
			m.log.WithError(err).WithField("records", len(records)).Error("failed to save records")
		}
		return
	}
	for key, raw := range records {
		if raw == nil {
			if err := m.persister.DeleteRecord(key); err != nil {
				m.log.WithError(err).WithField("record", key).Error("failed to delete record")
			}
			continue
		}
		if err := m.persister.SaveRecord(key, raw); err != nil {
			m.log.WithError(err).WithField("record", key).Error("failed to save record")
		}
	}
}

type subscription struct {
	path    Path
	mu      sync.Mutex
	pending *Snapshot
	signal  chan struct{}
	out     chan Snapshot
}

// offer replaces any undelivered snapshot with s.
func (s *subscription) offer(snap Snapshot) {
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) forward(ctx context.Context, done func()) {
	defer close(s.out)
	defer done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}
		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()
		if snap == nil {
			continue
		}
		select {
		case s.out <- *snap:
		case <-ctx.Done():
			return
		}
	}
}
