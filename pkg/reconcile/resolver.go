package reconcile

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"boxing-locker-go/pkg/log"
)

// MaxResolvedVideos caps the videos resolved for one message.
const MaxResolvedVideos = 3

// LookupFunc finds the best catalog match for one search term. A nil result means no match.
type LookupFunc func(ctx context.Context, term string) (*VideoRecommendation, error)

// Resolver turns the search terms of a message into catalog videos, once per message.
type Resolver struct {
	lookup     LookupFunc
	maxEntries int

	mu    sync.Mutex
	memo  map[string][]VideoRecommendation
	order []string

	// concurrent calls for one message share a single lookup
	inflight singleflight.Group
}

// NewResolver creates a Resolver that remembers up to maxEntries messages.
func NewResolver(lookup LookupFunc, maxEntries int) *Resolver {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Resolver{lookup: lookup, maxEntries: maxEntries, memo: make(map[string][]VideoRecommendation)}
}

// Resolve returns the videos for messageID, querying the catalog only the first time.
// Concurrent calls for the same message wait for the first one.
// Lookup failures for single terms are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, messageID string, terms []string) []VideoRecommendation {
	if cached, ok := r.cached(messageID); ok {
		return cached
	}
	v, _, _ := r.inflight.Do(messageID, func() (interface{}, error) {
		if cached, ok := r.cached(messageID); ok {
			return cached, nil
		}
		videos := r.lookupAll(ctx, messageID, terms)
		r.store(messageID, videos)
		return videos, nil
	})
	return v.([]VideoRecommendation)
}

func (r *Resolver) cached(messageID string) ([]VideoRecommendation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	videos, ok := r.memo[messageID]
	return videos, ok
}

func (r *Resolver) lookupAll(ctx context.Context, messageID string, terms []string) []VideoRecommendation {
	seen := make(map[string]bool)
	videos := []VideoRecommendation{}
	for _, term := range terms {
		if len(videos) == MaxResolvedVideos {
			break
		}
		rec, err := r.lookup(ctx, term)
		if err != nil {
			log.Warnf("[Resolver] lookup failed, message=%s term=%q: %v", messageID, term, err)
			continue
		}
		if rec == nil || seen[rec.VideoID] {
			continue
		}
		seen[rec.VideoID] = true
		videos = append(videos, *rec)
	}
	return videos
}

func (r *Resolver) store(messageID string, videos []VideoRecommendation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) >= r.maxEntries {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.memo, oldest)
	}
	r.memo[messageID] = videos
	r.order = append(r.order, messageID)
}
