package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const directoryKeyPrefix = "books:contacts"

// ContactSource is the subset of the client the directory fronts.
type ContactSource interface {
	GetContacts(ctx context.Context, q string, useContains bool) ([]ContactRef, error)
	GetContact(ctx context.Context, contactID string) (*ContactDetail, error)
}

// Directory fronts contact searches with a short-lived Redis cache.
// Autocomplete fires a lookup per keystroke; identical in-flight searches
// are collapsed through singleflight and recent results reused, keeping the
// upstream rate limit out of the typing path. A nil redis client degrades to
// pass-through.
type Directory struct {
	source ContactSource
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewDirectory constructs a directory.
func NewDirectory(source ContactSource, cache *redis.Client, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Directory{source: source, cache: cache, ttl: ttl}
}

// Search looks up contacts by name fragment.
func (d *Directory) Search(ctx context.Context, q string, useContains bool) ([]ContactRef, error) {
	key := fmt.Sprintf("%s:%t:%s", directoryKeyPrefix, useContains, strings.ToLower(q))

	if d.cache != nil {
		raw, err := d.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var refs []ContactRef
			if json.Unmarshal(raw, &refs) == nil {
				return refs, nil
			}
		case !errors.Is(err, redis.Nil):
			// A broken cache must not take searches down with it; fall
			// through to the upstream lookup.
		}
	}

	resultChan := d.group.DoChan(key, func() (interface{}, error) {
		refs, err := d.source.GetContacts(ctx, q, useContains)
		if err != nil {
			return nil, err
		}
		if d.cache != nil {
			if raw, err := json.Marshal(refs); err == nil {
				_ = d.cache.Set(ctx, key, raw, d.ttl).Err()
			}
		}
		return refs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]ContactRef), nil
	}
}

// Lookup fetches one contact, bypassing the cache: full detail includes
// payment terms, which must be current when an invoice is sent.
func (d *Directory) Lookup(ctx context.Context, contactID string) (*ContactDetail, error) {
	return d.source.GetContact(ctx, contactID)
}
