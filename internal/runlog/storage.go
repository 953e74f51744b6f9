package runlog

import "sync"

const (
	// DefaultEntries is the capacity of a Storage created with New.
	DefaultEntries = 100

	// MaxEntries caps SetCapacity.
	MaxEntries = 10000
)

// Counts tallies retained entries per level.
type Counts struct {
	Info    int `json:"info"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Debug   int `json:"debug"`
}

// Storage is a bounded ring of entries.
type Storage struct {
	mu       sync.RWMutex
	buf      []Entry
	head     int // index of the oldest entry
	size     int
	capacity int
	seq      uint64
}

// New returns a Storage holding DefaultEntries.
func New() *Storage {
	return NewWithCapacity(DefaultEntries)
}

// NewWithCapacity returns a Storage holding capacity entries, clamped to
// [1, MaxEntries].
func NewWithCapacity(capacity int) *Storage {
	capacity = clamp(capacity)
	return &Storage{buf: make([]Entry, capacity), capacity: capacity}
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxEntries {
		return MaxEntries
	}
	return n
}

// Push appends e, evicting the oldest entry when full, and returns e with
// its Seq assigned.
func (s *Storage) Push(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.Seq = s.seq
	if s.size == s.capacity {
		s.buf[s.head] = e
		s.head = (s.head + 1) % s.capacity
		return e
	}
	s.buf[(s.head+s.size)%s.capacity] = e
	s.size++
	return e
}

// Get returns the i-th retained entry, oldest first.
func (s *Storage) Get(i int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= s.size {
		return Entry{}, false
	}
	return s.buf[(s.head+i)%s.capacity], true
}

// Len returns the number of retained entries.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity returns the maximum number of retained entries.
func (s *Storage) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// Entries returns a copy of the retained entries, oldest first.
func (s *Storage) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Storage) snapshotLocked() []Entry {
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%s.capacity]
	}
	return out
}

// Clear drops all entries. Sequence numbers keep increasing.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = make([]Entry, s.capacity)
	s.head = 0
	s.size = 0
}

// SetCapacity resizes the ring, keeping the newest entries that fit.
func (s *Storage) SetCapacity(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity = clamp(capacity)
	kept := s.snapshotLocked()
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	s.buf = make([]Entry, capacity)
	copy(s.buf, kept)
	s.head = 0
	s.size = len(kept)
	s.capacity = capacity
}

// Counts tallies retained entries by level.
func (s *Storage) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	for i := 0; i < s.size; i++ {
		switch s.buf[(s.head+i)%s.capacity].Level {
		case LevelInfo:
			c.Info++
		case LevelWarning:
			c.Warning++
		case LevelError:
			c.Error++
		case LevelDebug:
			c.Debug++
		}
	}
	return c
}
