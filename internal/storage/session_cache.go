package storage

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SessionCache is a typed in-process cache for hot sync-path lookups.
// Entries are keyed by item or collection identity and invalidated
// explicitly, one key at a time.
type SessionCache struct {
	items    *gocache.Cache // item key -> *Item
	children *gocache.Cache // parent item key -> []*Attachment
	members  *gocache.Cache // collection key -> []*Item
}

// NewSessionCache creates a session cache with the given TTL.
// A zero TTL keeps entries until they are explicitly invalidated.
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl == 0 {
		ttl = gocache.NoExpiration
	}
	return &SessionCache{
		items:    gocache.New(ttl, 10*time.Minute),
		children: gocache.New(ttl, 10*time.Minute),
		members:  gocache.New(ttl, 10*time.Minute),
	}
}

// GetItem returns a cached item, if present.
func (c *SessionCache) GetItem(key string) (*Item, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Item), true
}

// PutItem caches an item by key.
func (c *SessionCache) PutItem(item *Item) {
	c.items.SetDefault(item.Key, item)
}

// GetChildren returns the cached attachment listing of an item, if present.
func (c *SessionCache) GetChildren(parentKey string) ([]*Attachment, bool) {
	v, ok := c.children.Get(parentKey)
	if !ok {
		return nil, false
	}
	return v.([]*Attachment), true
}

// PutChildren caches the attachment listing of an item.
func (c *SessionCache) PutChildren(parentKey string, atts []*Attachment) {
	c.children.SetDefault(parentKey, atts)
}

// GetMembers returns the cached item listing of a collection, if present.
func (c *SessionCache) GetMembers(collectionKey string) ([]*Item, bool) {
	v, ok := c.members.Get(collectionKey)
	if !ok {
		return nil, false
	}
	return v.([]*Item), true
}

// PutMembers caches the item listing of a collection.
func (c *SessionCache) PutMembers(collectionKey string, items []*Item) {
	c.members.SetDefault(collectionKey, items)
}

// InvalidateItem drops the cached item and its child listing.
func (c *SessionCache) InvalidateItem(key string) {
	c.items.Delete(key)
	c.children.Delete(key)
}

// InvalidateCollection drops the cached member listing of a collection.
func (c *SessionCache) InvalidateCollection(collectionKey string) {
	c.members.Delete(collectionKey)
}

// Flush drops every cached entry.
func (c *SessionCache) Flush() {
	c.items.Flush()
	c.children.Flush()
	c.members.Flush()
}
