package history

import (
	"sync"
	"testing"
)

func TestStore_LazyCreate(t *testing.T) {
	s := NewStore(10)
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}

	err := s.WithConversation(42, func(c *Cache) error {
		c.Append("hello")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 conversation, got %d", s.Len())
	}
}

func TestStore_SameChatSameCache(t *testing.T) {
	s := NewStore(10)
	s.WithConversation(1, func(c *Cache) error {
		c.Append("first")
		return nil
	})

	var seen int
	s.WithConversation(1, func(c *Cache) error {
		seen = c.Len()
		return nil
	})
	if seen != 1 {
		t.Fatalf("expected earlier append to be visible, got %d interactions", seen)
	}
}

func TestStore_ChatsAreIsolated(t *testing.T) {
	s := NewStore(10)
	s.WithConversation(1, func(c *Cache) error {
		c.Append("chat one")
		return nil
	})
	s.WithConversation(2, func(c *Cache) error {
		if c.Len() != 0 {
			t.Errorf("chat 2 saw chat 1 history: %d interactions", c.Len())
		}
		return nil
	})
	if s.Len() != 2 {
		t.Fatalf("expected 2 conversations, got %d", s.Len())
	}
}

func TestStore_CapacityPropagates(t *testing.T) {
	s := NewStore(2)
	s.WithConversation(7, func(c *Cache) error {
		c.Append("a")
		c.Append("b")
		c.Append("c")
		if c.Len() != 2 {
			t.Errorf("expected capacity 2, got %d interactions", c.Len())
		}
		return nil
	})
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := NewStore(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WithConversation(9, func(c *Cache) error {
				c.Append("m")
				return nil
			})
		}()
	}
	wg.Wait()

	s.WithConversation(9, func(c *Cache) error {
		if c.Len() != 50 {
			t.Errorf("expected 50 interactions, got %d", c.Len())
		}
		return nil
	})
}
