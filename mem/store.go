package singletonmem

import (
	"sync"

	"github.com/hackborn/singleton"
	"github.com/micro-go/lock"
)

// ------------------------------------------------------------
// MEM-STORE

// Store provides an in-memory singleton.Store. It applies conditional
// writes atomically per attribute, like the remote stores, and lets
// tests inject failures and line up racing readers. It is safe for
// concurrent use, so one Store can stand in for the shared store of
// many simulated nodes.
type Store struct {
	mutex   sync.RWMutex
	records map[string]singleton.Attributes
	faults  map[Op][]error
	calls   map[Op]int
	onRead  func(key string)
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]singleton.Attributes),
		faults:  make(map[Op][]error),
		calls:   make(map[Op]int),
	}
}

func (s *Store) ReadConsistent(key string) (singleton.Attributes, error) {
	attrs, err := s.read(key)
	if err != nil {
		return nil, err
	}
	if fn := s.readHook(); fn != nil {
		fn(key)
	}
	return attrs, nil
}

func (s *Store) read(key string) (singleton.Attributes, error) {
	defer lock.Write(&s.mutex).Unlock()
	if err := s.begin(OpRead, key, ""); err != nil {
		return nil, err
	}
	return copyAttributes(s.records[key]), nil
}

func (s *Store) WriteConditional(key, attr, expectedOld, newValue string) error {
	defer lock.Write(&s.mutex).Unlock()
	if err := s.begin(OpWriteConditional, key, attr); err != nil {
		return err
	}
	cur, ok := s.records[key].Value(attr)
	if !ok || cur != expectedOld {
		return &singleton.StoreError{Op: string(OpWriteConditional), Key: key, Attr: attr, Err: singleton.ErrConflict}
	}
	s.records[key][attr] = []string{newValue}
	return nil
}

func (s *Store) WriteUnconditional(key, attr, value string, replace bool) error {
	defer lock.Write(&s.mutex).Unlock()
	if err := s.begin(OpWriteUnconditional, key, attr); err != nil {
		return err
	}
	r := s.records[key]
	if r == nil {
		r = make(singleton.Attributes)
		s.records[key] = r
	}
	if replace {
		r[attr] = []string{value}
		return nil
	}
	// Values are a set, as in SimpleDB: appending an existing value is a no-op.
	if !r.Contains(attr, value) {
		r[attr] = append(r[attr], value)
	}
	return nil
}

func (s *Store) Delete(key string, attrs ...string) error {
	defer lock.Write(&s.mutex).Unlock()
	if err := s.begin(OpDelete, key, ""); err != nil {
		return err
	}
	r := s.records[key]
	if r == nil {
		return nil
	}
	for _, a := range attrs {
		delete(r, a)
	}
	if len(attrs) == 0 || len(r) == 0 {
		delete(s.records, key)
	}
	return nil
}

// ------------------------------------------------------------
// TEST-SUPPORT

// FailNext queues errors for the next calls of op, one per call.
// Queued errors are wrapped in a singleton.StoreError, so sentinel
// errors keep their classification.
func (s *Store) FailNext(op Op, errs ...error) {
	defer lock.Write(&s.mutex).Unlock()
	s.faults[op] = append(s.faults[op], errs...)
}

// Calls answers how many times op was called, including failed calls.
func (s *Store) Calls(op Op) int {
	defer lock.Read(&s.mutex).Unlock()
	return s.calls[op]
}

// OnRead installs fn to run after every successful consistent read,
// outside the store's lock. Tests use it to hold readers at a barrier.
func (s *Store) OnRead(fn func(key string)) {
	defer lock.Write(&s.mutex).Unlock()
	s.onRead = fn
}

// Get answers a copy of the stored attributes without counting a call.
func (s *Store) Get(key string) singleton.Attributes {
	defer lock.Read(&s.mutex).Unlock()
	return copyAttributes(s.records[key])
}

// Put replaces a record without counting a call.
func (s *Store) Put(key string, attrs singleton.Attributes) {
	defer lock.Write(&s.mutex).Unlock()
	if len(attrs) == 0 {
		delete(s.records, key)
		return
	}
	s.records[key] = copyAttributes(attrs)
}

func (s *Store) readHook() func(string) {
	defer lock.Read(&s.mutex).Unlock()
	return s.onRead
}

// begin counts a call of op and answers any queued failure.
// The caller must hold the write lock.
func (s *Store) begin(op Op, key, attr string) error {
	s.calls[op]++
	q := s.faults[op]
	if len(q) < 1 {
		return nil
	}
	err := q[0]
	s.faults[op] = q[1:]
	if err == nil {
		return nil
	}
	return &singleton.StoreError{Op: string(op), Key: key, Attr: attr, Err: err}
}

// ------------------------------------------------------------
// BOILERPLATE

func copyAttributes(src singleton.Attributes) singleton.Attributes {
	dst := make(singleton.Attributes, len(src))
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	return dst
}

// ------------------------------------------------------------
// CONST and VAR

// Op names a store operation for fault injection and call counts.
type Op string

const (
	OpRead               Op = "read-consistent"
	OpWriteConditional   Op = "write-conditional"
	OpWriteUnconditional Op = "write-unconditional"
	OpDelete             Op = "delete"
)
