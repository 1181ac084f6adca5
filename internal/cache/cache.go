// Package cache abstracts storing and fetching previously run tasks
//
// Adapted from https://github.com/thought-machine/please
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package cache

import (
	"errors"
	"runtime"
	"sync"

	"github.com/spf13/pflag"
	"github.com/forgerepo/forge/internal/config"
	"github.com/forgerepo/forge/internal/turbopath"
	"github.com/forgerepo/forge/internal/util"
	"golang.org/x/sync/errgroup"
)

// Cache is the abstract way to cache/fetch the outputs of previously run
// tasks. Fetch is expected to move files into their correct position as a
// side effect; Put archives the given files under hash.
type Cache interface {
	Fetch(anchor turbopath.AbsoluteSystemPath, hash string, files []string) (ItemStatus, []turbopath.AnchoredSystemPath, int, error)
	Exists(hash string) ItemStatus
	Put(anchor turbopath.AbsoluteSystemPath, hash string, duration int, files []turbopath.AnchoredSystemPath) error
	Clean(anchor turbopath.AbsoluteSystemPath)
	CleanAll()
	Shutdown()
}

// recorder is satisfied by anything that wants to observe cache hit/miss
// events as they happen; in practice this is an adapter over the
// lifecycle bus, kept as a narrow local interface so this package doesn't
// need to import the bus package's full surface.
type recorder interface {
	LogEvent(payload *CacheEvent)
}

// CacheEvent is the payload logged for every Fetch, win or lose.
type CacheEvent struct {
	Source   EventSource `mapstructure:"source"`
	Event    EventKind   `mapstructure:"event"`
	Hash     string      `mapstructure:"hash"`
	Duration int         `mapstructure:"duration"`
}

// OnCacheRemoved defines a callback that the cache system calls if a particular cache
// needs to be removed. In practice, this happens when Remote Caching has been disabled
// the but CLI continues to try to use it.
type OnCacheRemoved = func(cache Cache, err error)

// ErrNoCachesEnabled is returned when both the filesystem and http cache are unavailable
var ErrNoCachesEnabled = errors.New("no caches are enabled")

// Opts holds configuration options for the cache.
type Opts struct {
	// Dir overrides the default filesystem cache location when non-empty.
	Dir            string
	SkipRemote     bool
	SkipFilesystem bool
	Workers        int
	RemoteCacheOpts config.RemoteCacheOpts
}

// resolveCacheDir picks the filesystem cache directory: opts.Dir if set,
// otherwise the conventional location under the repo root.
func (o Opts) resolveCacheDir(repoRoot turbopath.AbsoluteSystemPath) turbopath.AbsoluteSystemPath {
	if o.Dir != "" {
		return turbopath.AbsoluteSystemPathFromUpstream(o.Dir)
	}
	return repoRoot.UntypedJoin("node_modules", ".cache", "forge")
}

var _remoteOnlyHelp = `Ignore the local filesystem cache for all tasks. Only
allow reading and caching artifacts using the remote cache.`

// AddFlags adds cache-related flags to the given FlagSet.
func AddFlags(opts *Opts, flags *pflag.FlagSet) {
	flags.BoolVar(&opts.SkipFilesystem, "remote-only", false, _remoteOnlyHelp)
	flags.StringVar(&opts.Dir, "cache-dir", "", "Specify local filesystem cache directory.")
	flags.IntVar(&opts.Workers, "cache-workers", runtime.NumCPU()+2, "Number of concurrent cache-writing workers.")
	flags.BoolVar(&opts.RemoteCacheOpts.Signature, "remote-cache-signature", false, "Require and verify a signature on every remote cache artifact.")
}

// New creates a new cache. rec observes fetch hits and misses as
// CacheEvents (puts are not logged); pass a no-op recorder when no one
// needs to listen.
func New(opts Opts, repoRoot turbopath.AbsoluteSystemPath, cfg *config.Config, rec recorder, onCacheRemoved OnCacheRemoved) (Cache, error) {
	c, err := newSyncCache(opts, repoRoot, cfg, rec, onCacheRemoved)
	if err != nil {
		return nil, err
	}
	if opts.Workers > 0 {
		return newAsyncCache(c, opts), nil
	}
	return c, nil
}

func newSyncCache(opts Opts, repoRoot turbopath.AbsoluteSystemPath, cfg *config.Config, rec recorder, onCacheRemoved OnCacheRemoved) (Cache, error) {
	mplex := &cacheMultiplexer{
		onCacheRemoved: onCacheRemoved,
		opts:           opts,
	}
	if !opts.SkipFilesystem {
		fsCache, err := newFsCache(opts, rec, repoRoot)
		if err != nil {
			return nil, err
		}
		mplex.caches = append(mplex.caches, fsCache)
	}
	if !opts.SkipRemote && cfg.RemoteCacheEnabled() {
		httpClient, err := newRemoteCacheClient(cfg)
		if err != nil {
			return nil, err
		}
		mplex.caches = append(mplex.caches, newHTTPCache(opts, httpClient, rec, repoRoot))
	}
	if len(mplex.caches) == 0 {
		return nil, ErrNoCachesEnabled
	} else if len(mplex.caches) == 1 {
		return mplex.caches[0], nil // Skip the extra layer of indirection
	}
	return mplex, nil
}

// A cacheMultiplexer multiplexes several caches into one.
// Used when we have several active (eg. http, dir).
type cacheMultiplexer struct {
	caches         []Cache
	opts           Opts
	mu             sync.RWMutex
	onCacheRemoved OnCacheRemoved
}

func (mplex *cacheMultiplexer) Put(anchor turbopath.AbsoluteSystemPath, hash string, duration int, files []turbopath.AnchoredSystemPath) error {
	return mplex.storeUntil(anchor, hash, duration, files, len(mplex.caches))
}

type cacheRemoval struct {
	cache Cache
	err   *util.CacheDisabledError
}

// storeUntil stores artifacts into higher priority caches than the given one.
// Used after artifact retrieval to ensure we have them in eg. the directory cache after
// downloading from the RPC cache.
func (mplex *cacheMultiplexer) storeUntil(anchor turbopath.AbsoluteSystemPath, hash string, duration int, outputFiles []turbopath.AnchoredSystemPath, stopAt int) error {
	// Attempt to store on all caches simultaneously.
	toRemove := make([]*cacheRemoval, stopAt)
	g := &errgroup.Group{}
	mplex.mu.RLock()
	for i, cache := range mplex.caches {
		if i == stopAt {
			break
		}
		c := cache
		i := i
		g.Go(func() error {
			err := c.Put(anchor, hash, duration, outputFiles)
			if err != nil {
				cd := &util.CacheDisabledError{}
				if errors.As(err, &cd) {
					toRemove[i] = &cacheRemoval{
						cache: c,
						err:   cd,
					}
					// we don't want this to cancel other cache actions
					return nil
				}
				return err
			}
			return nil
		})
	}
	mplex.mu.RUnlock()

	if err := g.Wait(); err != nil {
		return err
	}

	for _, removal := range toRemove {
		if removal != nil {
			mplex.removeCache(removal)
		}
	}
	return nil
}

// removeCache takes a requested removal and tries to actually remove it. However,
// multiple requests could result in concurrent requests to remove the same cache.
// Let one of them win and propagate the error, the rest will no-op.
func (mplex *cacheMultiplexer) removeCache(removal *cacheRemoval) {
	mplex.mu.Lock()
	defer mplex.mu.Unlock()
	for i, cache := range mplex.caches {
		if cache == removal.cache {
			mplex.caches = append(mplex.caches[:i], mplex.caches[i+1:]...)
			mplex.onCacheRemoved(cache, removal.err)
			break
		}
	}
}

func (mplex *cacheMultiplexer) Fetch(anchor turbopath.AbsoluteSystemPath, hash string, files []string) (ItemStatus, []turbopath.AnchoredSystemPath, int, error) {
	// Make a shallow copy of the caches, since storeUntil can call removeCache
	mplex.mu.RLock()
	caches := make([]Cache, len(mplex.caches))
	copy(caches, mplex.caches)
	mplex.mu.RUnlock()

	// Retrieve from caches sequentially; if we did them simultaneously we could
	// easily write the same file from two goroutines at once.
	for i, cache := range caches {
		status, actualFiles, duration, err := cache.Fetch(anchor, hash, files)
		if err != nil {
			cd := &util.CacheDisabledError{}
			if errors.As(err, &cd) {
				mplex.removeCache(&cacheRemoval{
					cache: cache,
					err:   cd,
				})
			}
			// We're ignoring the error in the else case, since with this cache
			// abstraction, we want to check lower priority caches rather than fail
			// the operation. Future work that plumbs UI / Logging into the cache system
			// should probably log this at least.
		}
		if status.Hit() {
			// Store this into other caches. We can ignore errors here because we know
			// we have previously successfully stored in a higher-priority cache, and so the overall
			// result is a success at fetching. Storing in lower-priority caches is an optimization.
			_ = mplex.storeUntil(anchor, hash, duration, actualFiles, i)
			return status, actualFiles, duration, err
		}
	}
	return NewCacheMiss(), nil, 0, nil
}

// Exists reports whether hash is present in any of the multiplexed caches,
// marking every tier that holds it.
func (mplex *cacheMultiplexer) Exists(hash string) ItemStatus {
	mplex.mu.RLock()
	caches := make([]Cache, len(mplex.caches))
	copy(caches, mplex.caches)
	mplex.mu.RUnlock()

	status := NewCacheMiss()
	for _, cache := range caches {
		s := cache.Exists(hash)
		status.Local = status.Local || s.Local
		status.Remote = status.Remote || s.Remote
	}
	return status
}

func (mplex *cacheMultiplexer) Clean(anchor turbopath.AbsoluteSystemPath) {
	for _, cache := range mplex.caches {
		cache.Clean(anchor)
	}
}

func (mplex *cacheMultiplexer) CleanAll() {
	for _, cache := range mplex.caches {
		cache.CleanAll()
	}
}

func (mplex *cacheMultiplexer) Shutdown() {
	for _, cache := range mplex.caches {
		cache.Shutdown()
	}
}
