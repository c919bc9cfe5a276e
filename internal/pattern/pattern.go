// Package pattern implements the AI-Assist pattern cache: a
// concurrency-safe store of previously synthesized abstract action
// sequences, keyed by a normalized digest of the task that produced them.
package pattern

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Key derives the 16-hex pattern id from a task/action/target triple.
// Inputs are lowercased before hashing so that case alone never produces
// distinct cache entries.
func Key(task, actionType, target string) string {
	norm := strings.ToLower(task) + "|" + strings.ToLower(actionType) + "|" + strings.ToLower(target)
	sum := md5.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// Cache is a concurrency-safe map of pattern id to Pattern.
type Cache struct {
	mu       sync.Mutex
	patterns map[string]model.Pattern
	nowFn    func() time.Time
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{patterns: make(map[string]model.Pattern), nowFn: time.Now}
}

// Get returns the pattern stored under key, if any.
func (c *Cache) Get(key string) (model.Pattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patterns[key]
	return p, ok
}

// Put stores (or overwrites) a pattern, stamping CreatedAt if unset.
func (c *Cache) Put(p model.Pattern) model.Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = c.nowFn()
	}
	if p.LastUsed.IsZero() {
		p.LastUsed = p.CreatedAt
	}
	c.patterns[p.PatternID] = p
	return p
}

// Touch updates LastUsed for an existing pattern without altering counts.
func (c *Cache) Touch(key string) (model.Pattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patterns[key]
	if !ok {
		return model.Pattern{}, false
	}
	p.LastUsed = c.nowFn()
	c.patterns[key] = p
	return p, true
}

// Record adjusts a pattern's success/failure counters after an attempt.
// It is a no-op, returning (_, false), if no pattern exists under key.
func (c *Cache) Record(key string, success bool) (model.Pattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patterns[key]
	if !ok {
		return model.Pattern{}, false
	}
	if success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.LastUsed = c.nowFn()
	c.patterns[key] = p
	return p, true
}

// Export returns all patterns ordered by SuccessRate descending. Ties are
// broken by PatternID for a deterministic, stable ordering.
func (c *Cache) Export() []model.Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].SuccessRate(), out[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		return out[i].PatternID < out[j].PatternID
	})
	return out
}

// Len reports the number of stored patterns.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patterns)
}

// String is a debug aid used in log lines, never in decision logic.
func (c *Cache) String() string {
	return fmt.Sprintf("pattern.Cache{entries=%d}", c.Len())
}
