// Package store implements the shared real-time store the watch-party rooms are
// built on: a hierarchical JSON tree with subtree subscriptions, push keys,
// atomic transactions and per-connection disconnect hooks.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a disconnect hook is managed for a
	// connection the store does not know about.
	ErrNotConnected = errors.New("connection not registered")

	// ErrInvalidValue is returned when a value cannot be represented as JSON.
	ErrInvalidValue = errors.New("invalid value")

	// SkipWrite may be returned by a TxFunc to end a transaction without
	// writing anything. Transaction reports it as success.
	SkipWrite = errors.New("skip write")
)

// TxFunc receives a private copy of the current value at the transaction
// path (nil when absent) and returns the value to store there. Returning nil
// removes the node.
type TxFunc func(current any) (any, error)

// Store is the contract the room subsystem consumes. Writes return once they
// are applied; subscribers observe them asynchronously.
type Store interface {
	Get(p Path) (Snapshot, error)
	Set(p Path, value any) error
	Update(p Path, values map[string]any) error
	Remove(p Path) error
	Push(p Path, value any) (string, error)
	Transaction(p Path, fn TxFunc) (Snapshot, error)

	// Subscribe delivers the current value at p immediately and then a full
	// snapshot after every change at, above or below p. Intermediate
	// snapshots may be coalesced; the channel closes when ctx is done.
	Subscribe(ctx context.Context, p Path) <-chan Snapshot

	Connect(connID string) error
	OnDisconnectRemove(connID string, p Path) error
	CancelOnDisconnect(connID string, p Path) error
	Disconnect(connID string) error
}

// Persister mirrors top-level records (paths two segments deep, such as
// rooms/{id}) to durable storage.
type Persister interface {
	SaveRecord(key string, value []byte) error
	DeleteRecord(key string) error
	LoadRecords() (map[string][]byte, error)
}

// BatchPersister is a Persister that can write many records at once. A nil
// value in records deletes that record.
type BatchPersister interface {
	Persister
	ApplyRecords(records map[string][]byte) error
}

type Snapshot struct {
	Path  Path
	Value any
}

func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode converts the snapshot value into v through its JSON form.
func (s Snapshot) Decode(v any) error {
	return decodeValue(s.Value, v)
}

// Children returns the direct children of an object snapshot.
func (s Snapshot) Children() map[string]Snapshot {
	m, ok := s.Value.(map[string]any)
	if !ok {
		return map[string]Snapshot{}
	}
	out := make(map[string]Snapshot, len(m))
	for k, v := range m {
		out[k] = Snapshot{Path: s.Path.Append(k), Value: v}
	}
	return out
}

type Stats struct {
	Records       int
	Connections   int
	Subscriptions int
	Hooks         int
}

func decodeValue(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// normalize turns any JSON-marshalable value into the tree representation
// (maps, slices, float64, string, bool) and drops empty objects.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var out any
	if err := decodeValue(v, &out); err != nil {
		return nil, err
	}
	return prune(out), nil
}

func prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, c := range t {
			if pc := prune(c); pc == nil {
				delete(t, k)
			} else {
				t[k] = pc
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = deepCopy(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = deepCopy(c)
		}
		return out
	default:
		return v
	}
}

func getIn(node any, p Path) any {
	for _, seg := range p {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// setIn writes v at p below node and returns the new node; empty objects on
// the way back up are removed.
func setIn(node any, p Path, v any) any {
	if len(p) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	if child := setIn(m[p[0]], p[1:], v); child == nil {
		delete(m, p[0])
	} else {
		m[p[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
