package transcript

import (
	"sync"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
)

// EventKind names the store mutation that produced an Event.
type EventKind int

const (
	Appended EventKind = iota + 1
	Prepended
	Replaced
	// Adopted carries no messages; the conversation identity was assigned.
	Adopted
)

func (k EventKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case Prepended:
		return "prepended"
	case Replaced:
		return "replaced"
	case Adopted:
		return "adopted"
	default:
		return "unknown"
	}
}

// Event describes one completed mutation. Messages holds only the entries the
// mutation added.
type Event struct {
	Kind       EventKind
	Messages   []chat.Message
	Generation uint64
}

// Listener observes completed mutations.
type Listener func(Event)

// Store is the ordered transcript of one conversation plus its identity.
// Insertion position encodes chronology; nothing is ever re-sorted.
type Store struct {
	mu             sync.RWMutex
	conversationID string
	messages       []chat.Message
	index          map[string]struct{}
	generation     uint64

	// emitMu serializes listener delivery in mutation order.
	emitMu    sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an empty transcript for conversationID (which may be empty).
func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		messages:       make([]chat.Message, 0, 32),
		index:          make(map[string]struct{}),
		listeners:      make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns a function removing it.
// Listeners run synchronously after each mutation and must not mutate the
// store or (un)subscribe from inside the callback.
func (s *Store) Subscribe(fn Listener) func() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.emitMu.Lock()
		delete(s.listeners, id)
		s.emitMu.Unlock()
	}
}

// Append adds msg to the tail. It returns false when the id is already present.
func (s *Store) Append(msg chat.Message) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if _, exists := s.index[msg.ID]; exists || msg.ID == "" {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, msg)
	s.index[msg.ID] = struct{}{}
	gen := s.generation
	s.mu.Unlock()

	s.emit(Event{Kind: Appended, Messages: []chat.Message{msg}, Generation: gen})
	return true
}

// PrependPage inserts page before the earliest entry, keeping its internal
// order. Entries whose id is already present are skipped. It returns the
// number of messages inserted.
func (s *Store) PrependPage(page []chat.Message) int {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	fresh := make([]chat.Message, 0, len(page))
	seen := make(map[string]struct{}, len(page))
	for _, msg := range page {
		if msg.ID == "" {
			continue
		}
		if _, exists := s.index[msg.ID]; exists {
			continue
		}
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		s.mu.Unlock()
		return 0
	}

	merged := make([]chat.Message, 0, len(fresh)+len(s.messages))
	merged = append(merged, fresh...)
	merged = append(merged, s.messages...)
	s.messages = merged
	for id := range seen {
		s.index[id] = struct{}{}
	}
	gen := s.generation
	s.mu.Unlock()

	s.emit(Event{Kind: Prepended, Messages: fresh, Generation: gen})
	return len(fresh)
}

// ReplaceAll swaps the whole transcript for the initial history of a newly
// opened conversation. Duplicate ids inside messages keep their first occurrence.
func (s *Store) ReplaceAll(messages []chat.Message) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	next := make([]chat.Message, 0, len(messages))
	index := make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		if msg.ID == "" {
			continue
		}
		if _, dup := index[msg.ID]; dup {
			continue
		}
		index[msg.ID] = struct{}{}
		next = append(next, msg)
	}
	s.messages = next
	s.index = index
	s.generation++
	gen := s.generation
	snapshot := append([]chat.Message(nil), next...)
	s.mu.Unlock()

	s.emit(Event{Kind: Replaced, Messages: snapshot, Generation: gen})
}

// Reset clears the transcript and switches to conversationID.
func (s *Store) Reset(conversationID string) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.mu.Unlock()
	s.ReplaceAll(nil)
}

// Messages returns a copy of the transcript in display order.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Find returns the message with the given id.
func (s *Store) Find(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.index[id]; !ok {
		return chat.Message{}, false
	}
	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return chat.Message{}, false
}

// Oldest returns the earliest entry whose id was assigned by the server.
func (s *Store) Oldest() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, msg := range s.messages {
		if !chat.IsLocalID(msg.ID) {
			return msg, true
		}
	}
	return chat.Message{}, false
}

// ConversationID returns the conversation identity, empty before the backend
// assigned one.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// AdoptConversation records id when no conversation is known yet and notifies
// listeners with an Adopted event. It reports whether id was adopted.
func (s *Store) AdoptConversation(id string) bool {
	if id == "" {
		return false
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.conversationID != "" {
		s.mu.Unlock()
		return false
	}
	s.conversationID = id
	gen := s.generation
	s.mu.Unlock()

	s.emit(Event{Kind: Adopted, Generation: gen})
	return true
}

// Generation changes every time the transcript is replaced wholesale.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// emit must be called with emitMu held and mu released.
func (s *Store) emit(evt Event) {
	for _, fn := range s.listeners {
		fn(evt)
	}
}
