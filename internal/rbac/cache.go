package rbac

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// AccessCache memoises membership lookups per (user, company) for a TTL.
// Denials are cached too, as a zero Membership.
type AccessCache struct {
	store *gocache.Cache
}

// NewAccessCache builds a cache whose entries expire after ttl.
func NewAccessCache(ttl time.Duration) *AccessCache {
	return &AccessCache{store: gocache.New(ttl, 2*ttl)}
}

func accessKey(userID, companyID int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(companyID, 10)
}

// Get returns a cached membership and whether one was present.
func (c *AccessCache) Get(userID, companyID int64) (Membership, bool) {
	if c == nil {
		return Membership{}, false
	}
	v, ok := c.store.Get(accessKey(userID, companyID))
	if !ok {
		return Membership{}, false
	}
	return v.(Membership), true
}

// Set stores a membership under the default TTL.
func (c *AccessCache) Set(userID, companyID int64, m Membership) {
	if c == nil {
		return
	}
	c.store.SetDefault(accessKey(userID, companyID), m)
}

// Delete drops one cached entry.
func (c *AccessCache) Delete(userID, companyID int64) {
	if c == nil {
		return
	}
	c.store.Delete(accessKey(userID, companyID))
}

// Flush drops every cached entry.
func (c *AccessCache) Flush() {
	if c == nil {
		return
	}
	c.store.Flush()
}
