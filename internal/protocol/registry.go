package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnregistered is returned for ids without a registered type.
	ErrUnregistered = errors.New("unregistered id")
	// ErrSealed is returned when registering after Finish.
	ErrSealed = errors.New("registry is sealed")
	// ErrDuplicate is returned when an id is registered twice.
	ErrDuplicate = errors.New("id already registered")
	// ErrInvalidID is returned for ids outside 0..255.
	ErrInvalidID = errors.New("id out of range")
)

// resetter is implemented by messages that drop state when recycled.
type resetter interface {
	Reset()
}

type entry[T Message] struct {
	id       int
	typeName string
	pool     sync.Pool
}

// Entry describes one registered id.
type Entry struct {
	ID        int    `json:"id"`
	Canonical int    `json:"canonical"`
	Type      string `json:"type"`
}

// Registry maps numeric ids to message types and keeps a free list of
// instances per type. Several ids may share a type through Map.
//
// Registration happens once at startup. After Finish the tables are never
// written again and lookups from the sender, receiver and executor
// goroutines do not lock.
type Registry[T Message] struct {
	name string

	mu      sync.Mutex
	ids     map[int]*entry[T]
	aliases map[int]int
	sealed  atomic.Bool
}

// NewRegistry creates an empty registry. The name is used in errors.
func NewRegistry[T Message](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		ids:     make(map[int]*entry[T]),
		aliases: make(map[int]int),
	}
}

// Register associates id with the type produced by newFn.
func (r *Registry[T]) Register(id int, newFn func() T) error {
	if id < 0 || id > 0xFF {
		return fmt.Errorf("%s: %w: %d", r.name, ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%s: %w", r.name, ErrSealed)
	}
	if _, exists := r.ids[id]; exists {
		return fmt.Errorf("%s: %w: 0x%02X", r.name, ErrDuplicate, id)
	}

	e := &entry[T]{
		id:       id,
		typeName: fmt.Sprintf("%T", newFn()),
	}
	e.pool.New = func() any { return newFn() }
	r.ids[id] = e
	return nil
}

// Map registers alias as another id for the type already registered at canonical.
func (r *Registry[T]) Map(alias, canonical int) error {
	if alias < 0 || alias > 0xFF {
		return fmt.Errorf("%s: %w: %d", r.name, ErrInvalidID, alias)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("%s: %w", r.name, ErrSealed)
	}
	if _, exists := r.ids[alias]; exists {
		return fmt.Errorf("%s: %w: 0x%02X", r.name, ErrDuplicate, alias)
	}
	e, ok := r.ids[canonical]
	if !ok {
		return fmt.Errorf("%s: alias 0x%02X: %w: 0x%02X", r.name, alias, ErrUnregistered, canonical)
	}

	r.ids[alias] = e
	r.aliases[alias] = canonical
	return nil
}

// Finish validates the alias table and seals the registry.
func (r *Registry[T]) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for alias, canonical := range r.aliases {
		e, ok := r.ids[canonical]
		if !ok || e.id != canonical {
			return fmt.Errorf("%s: alias 0x%02X points to missing id 0x%02X", r.name, alias, canonical)
		}
	}

	r.sealed.Store(true)
	return nil
}

// Sealed reports whether Finish was called.
func (r *Registry[T]) Sealed() bool {
	return r.sealed.Load()
}

func (r *Registry[T]) lookup(id int) (*entry[T], bool) {
	if !r.sealed.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	e, ok := r.ids[id]
	return e, ok
}

// Get returns a recycled or new instance for id, already activated with id.
func (r *Registry[T]) Get(id int) (T, error) {
	e, ok := r.lookup(id)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: %w: 0x%02X", r.name, ErrUnregistered, id)
	}

	msg := e.pool.Get().(T)
	msg.Activate(id)
	return msg, nil
}

// Recycle hands msg back to the free list of its type. The caller must not
// use msg afterwards.
func (r *Registry[T]) Recycle(msg T) {
	e, ok := r.lookup(msg.ID())
	if !ok {
		return
	}
	if rs, ok := any(msg).(resetter); ok {
		rs.Reset()
	}
	e.pool.Put(msg)
}

// Has reports whether id resolves to a registered type.
func (r *Registry[T]) Has(id int) bool {
	_, ok := r.lookup(id)
	return ok
}

// Entries lists every registered id, aliases included, sorted by id.
func (r *Registry[T]) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Entry, 0, len(r.ids))
	for id, e := range r.ids {
		result = append(result, Entry{
			ID:        id,
			Canonical: e.id,
			Type:      e.typeName,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
