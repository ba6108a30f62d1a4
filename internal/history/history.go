package history

import (
	"strings"
	"time"
)

// DefaultCapacity is the dialogue window used when no capacity is configured.
const DefaultCapacity = 10

// timestampLayout matches the format shown to the model in transcripts.
const timestampLayout = "2006-01-02 15:04:05 (Monday)"

// Interaction is one user message and its (eventually attached) reply.
type Interaction struct {
	Timestamp string
	UserText  string
	Response  string
}

// Cache is a bounded, chronologically ordered dialogue history for one
// conversation. The oldest interaction is evicted first once the capacity
// is exceeded. Only the most recently appended interaction is ever mutated,
// when the reply is attached. Cache itself is not goroutine-safe; access is
// serialized by Store.
type Cache struct {
	interactions []Interaction
	capacity     int
	now          func() time.Time
}

// NewCache creates an empty cache. A capacity <= 0 falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{capacity: capacity, now: time.Now}
}

// Append records a new user message with the current timestamp and an empty
// response, evicting the oldest interaction if the cache is full.
func (c *Cache) Append(userText string) {
	entry := Interaction{
		Timestamp: c.now().Format(timestampLayout),
		UserText:  userText,
	}
	c.interactions = append(c.interactions, entry)
	if len(c.interactions) > c.capacity {
		c.interactions = c.interactions[len(c.interactions)-c.capacity:]
	}
}

// AttachResponse sets the reply on the most recently appended interaction.
// No-op on an empty cache.
func (c *Cache) AttachResponse(response string) {
	if len(c.interactions) == 0 {
		return
	}
	c.interactions[len(c.interactions)-1].Response = response
}

// Len returns the number of retained interactions.
func (c *Cache) Len() int {
	return len(c.interactions)
}

// Interactions returns a copy of the retained interactions in chronological order.
func (c *Cache) Interactions() []Interaction {
	out := make([]Interaction, len(c.interactions))
	copy(out, c.interactions)
	return out
}

// Transcript renders the whole history as one block, interactions joined by
// blank lines, chronological order.
func (c *Cache) Transcript() string {
	return strings.Join(c.TranscriptList(), "\n\n")
}

// TranscriptList renders each interaction as its own string, same formatting
// as Transcript, chronological order.
func (c *Cache) TranscriptList() []string {
	out := make([]string, 0, len(c.interactions))
	for _, it := range c.interactions {
		out = append(out, "["+it.Timestamp+"] User: "+it.UserText+"\nAssistant: "+it.Response)
	}
	return out
}
