package overlay

// Store is the persistence abstraction behind the detection cache.
// Implementations need not be safe for concurrent use; Cache serializes access.
type Store interface {
	GetFrame(frameID int) ([]Track, bool)
	SetFrame(frameID int, tracks []Track)
	Len() int
	Reset()
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	frames map[int][]Track
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		frames: make(map[int][]Track),
	}
}

// GetFrame implements Store.GetFrame.
func (s *InMemoryStore) GetFrame(frameID int) ([]Track, bool) {
	tracks, ok := s.frames[frameID]
	return tracks, ok
}

// SetFrame implements Store.SetFrame.
func (s *InMemoryStore) SetFrame(frameID int, tracks []Track) {
	s.frames[frameID] = tracks
}

// Len implements Store.Len.
func (s *InMemoryStore) Len() int {
	return len(s.frames)
}

// Reset implements Store.Reset.
func (s *InMemoryStore) Reset() {
	s.frames = make(map[int][]Track)
}
