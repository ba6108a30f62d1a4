package history

import "sync"

// conversation pairs a cache with its own lock. The lock is held for the
// full duration of one message's pipeline run, so two messages from the same
// chat are never processed concurrently.
type conversation struct {
	mu    sync.Mutex
	cache *Cache
}

// Store maps chat IDs to their dialogue caches. The store-level lock guards
// only the map; each conversation has its own lock, so distinct chats can
// run pipelines in parallel. Conversations are created lazily on first use
// and never evicted (unbounded growth per distinct chat; an LRU/TTL policy
// needs a deliberate decision, see DESIGN.md).
type Store struct {
	mu            sync.Mutex
	capacity      int
	conversations map[int64]*conversation
}

// NewStore creates a store whose caches use the given capacity.
func NewStore(capacity int) *Store {
	return &Store{
		capacity:      capacity,
		conversations: map[int64]*conversation{},
	}
}

// WithConversation runs fn with exclusive access to the chat's cache,
// creating an empty one on first use. The conversation lock is held for the
// whole call, external calls included.
func (s *Store) WithConversation(chatID int64, fn func(*Cache) error) error {
	conv := s.getOrCreate(chatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return fn(conv.cache)
}

// Len returns the number of known conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func (s *Store) getOrCreate(chatID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[chatID]
	if !ok {
		conv = &conversation{cache: NewCache(s.capacity)}
		s.conversations[chatID] = conv
	}
	return conv
}
