package assistants

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultNameCacheSize = 512
	defaultNameCacheTTL  = 10 * time.Minute
)

type nameEntry struct {
	filename string
	storedAt time.Time
}

// FileRetriever is the slice of the client the resolver needs.
type FileRetriever interface {
	RetrieveFile(ctx context.Context, fileID string) (*File, error)
}

// FileNameResolver resolves file ids to display filenames, caching results.
// File metadata is immutable remotely, so the TTL only bounds memory of
// deleted files.
type FileNameResolver struct {
	client FileRetriever
	cache  *lru.Cache[string, nameEntry]
	ttl    time.Duration
	now    func() time.Time
}

// NewFileNameResolver builds a resolver over client with an LRU cache.
func NewFileNameResolver(client FileRetriever) *FileNameResolver {
	cache, err := lru.New[string, nameEntry](defaultNameCacheSize)
	if err != nil {
		// lru.New only errors on non-positive size.
		panic(err)
	}
	return &FileNameResolver{
		client: client,
		cache:  cache,
		ttl:    defaultNameCacheTTL,
		now:    time.Now,
	}
}

// Resolve returns the filename for a single file id.
func (r *FileNameResolver) Resolve(ctx context.Context, fileID string) (string, error) {
	if entry, ok := r.cache.Get(fileID); ok && r.now().Sub(entry.storedAt) < r.ttl {
		return entry.filename, nil
	}
	file, err := r.client.RetrieveFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	r.cache.Add(fileID, nameEntry{filename: file.Filename, storedAt: r.now()})
	return file.Filename, nil
}

// ResolveAll maps each file id to its filename. Lookup failures yield an empty
// name for that id rather than failing the whole listing.
func (r *FileNameResolver) ResolveAll(ctx context.Context, fileIDs []string) []string {
	names := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		name, err := r.Resolve(ctx, id)
		if err != nil {
			continue
		}
		names[i] = name
	}
	return names
}
