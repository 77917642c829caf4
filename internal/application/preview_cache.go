package application

import (
	"strings"
	"sync"
	"time"
)

// previewCache keeps recent rule previews so the builder UI can re-request
// the same rule on every keystroke without re-expanding it.
type previewCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]previewCacheEntry
}

type previewCacheEntry struct {
	preview   RulePreview
	expiresAt time.Time
}

func newPreviewCache(ttl time.Duration, maxEntries int, now func() time.Time) *previewCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &previewCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]previewCacheEntry),
	}
}

func (c *previewCache) Get(key string) (RulePreview, bool) {
	if c == nil {
		return RulePreview{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return RulePreview{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return RulePreview{}, false
	}
	return clonePreview(entry.preview), true
}

func (c *previewCache) Store(key string, preview RulePreview) {
	if c == nil {
		return
	}
	cloned := clonePreview(preview)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = previewCacheEntry{preview: cloned, expiresAt: expiry}
}

func (c *previewCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *previewCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func clonePreview(preview RulePreview) RulePreview {
	if len(preview.Preview) == 0 {
		return RulePreview{Rule: preview.Rule}
	}
	out := make([]time.Time, len(preview.Preview))
	copy(out, preview.Preview)
	return RulePreview{Rule: preview.Rule, Preview: out}
}

// buildPreviewCacheKey identifies a preview by its inputs. now is truncated
// to the minute so that a cached preview never lags by more than that.
func buildPreviewCacheKey(rule string, req RulePreviewRequest, now time.Time) string {
	builder := strings.Builder{}
	builder.WriteString(rule)
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(req.StartDate))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(req.LocalStartTime))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(req.Timezone))
	builder.WriteString("|")
	builder.WriteString(now.UTC().Truncate(time.Minute).Format(time.RFC3339))
	return builder.String()
}
