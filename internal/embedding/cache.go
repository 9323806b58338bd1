package embedding

import (
	"container/list"
	"sync"
)

// Cache keeps the most recently embedded texts. Vectors are copied in and out so
// callers may normalize or reuse the slices they hold.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cached struct {
	text string
	vec  []float32
}

// NewCache returns a cache holding up to capacity vectors. A non-positive capacity
// returns nil; a nil *Cache misses on every lookup.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		return nil
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns a copy of the vector stored for text.
func (c *Cache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return cloneVec(elem.Value.(*cached).vec), true
}

// Put stores vec for text and evicts the least recently used entry past capacity.
func (c *Cache) Put(text string, vec []float32) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[text]; ok {
		elem.Value.(*cached).vec = cloneVec(vec)
		c.order.MoveToFront(elem)
		return
	}
	c.items[text] = c.order.PushFront(&cached{text: text, vec: cloneVec(vec)})
	if c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*cached).text)
	}
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
