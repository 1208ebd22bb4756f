package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Config holds tier lifetimes and timeouts.
type Config struct {
	// MemoryTTL is how long a payload is served from process memory
	MemoryTTL time.Duration

	// KVTTL is the expiry written with KV entries
	KVTTL time.Duration

	// KVTimeout bounds every KV round trip
	KVTimeout time.Duration

	// LoadTimeout bounds a live load, including all of its upstream calls
	LoadTimeout time.Duration
}

// DefaultConfig returns the production tier settings.
func DefaultConfig() Config {
	return Config{
		MemoryTTL:   5 * time.Minute,
		KVTTL:       30 * time.Minute,
		KVTimeout:   2 * time.Second,
		LoadTimeout: 60 * time.Second,
	}
}

// LoadOptions adjusts a single lookup.
type LoadOptions struct {
	// MemoryTTL overrides Config.MemoryTTL when set
	MemoryTTL time.Duration

	// KVTTL overrides Config.KVTTL when set
	KVTTL time.Duration

	// NegativeTTL, when set, writes an empty negative KV entry after a failed load
	NegativeTTL time.Duration
}

// Loader fetches a payload from upstream.
type Loader func(ctx context.Context) ([]byte, error)

// ErrFinal marks a load error as an authoritative upstream answer, such as
// a product that no longer exists. Use Final to wrap loader errors.
var ErrFinal = errors.New("final upstream answer")

type finalError struct{ err error }

func (e *finalError) Error() string   { return e.err.Error() }
func (e *finalError) Unwrap() []error { return []error{e.err, ErrFinal} }

// Final wraps err so that errors.Is(err, ErrFinal) holds while err stays
// matchable.
func Final(err error) error {
	if err == nil {
		return nil
	}
	return &finalError{err: err}
}

// Result is a payload and where it came from.
type Result struct {
	Data     []byte
	Layer    string
	Stale    bool
	Negative bool
}

// Tiered looks up memory, then KV, then disk, then the loader. A nil KV
// or Disk disables that tier.
type Tiered struct {
	memory *Memory
	kv     KV
	disk   *Disk
	group  singleflight.Group
	config Config
	logger zerolog.Logger
}

// NewTiered creates the tier coordinator. memory is required.
func NewTiered(memory *Memory, kv KV, disk *Disk, cfg Config, logger zerolog.Logger) *Tiered {
	if memory == nil {
		panic("memory tier cannot be nil")
	}
	defaults := DefaultConfig()
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = defaults.MemoryTTL
	}
	if cfg.KVTTL <= 0 {
		cfg.KVTTL = defaults.KVTTL
	}
	if cfg.KVTimeout <= 0 {
		cfg.KVTimeout = defaults.KVTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaults.LoadTimeout
	}
	// an interface holding a typed nil would pass a plain nil check
	if m, ok := kv.(*Manager); ok && m == nil {
		kv = nil
	}
	return &Tiered{
		memory: memory,
		kv:     kv,
		disk:   disk,
		config: cfg,
		logger: logger,
	}
}

// Get returns the payload for key. Concurrent callers for the same key
// share one fill. The fill runs detached from ctx so that an abandoned
// caller does not cancel it for the others; ctx only bounds this caller's
// wait. The returned Data is the caller's own copy.
func (t *Tiered) Get(ctx context.Context, key Key, opts LoadOptions, load Loader) (*Result, error) {
	k := key.String()

	if e, ok := t.memory.Fresh(k); ok {
		CacheHits.WithLabelValues(LayerMemory).Inc()
		t.logger.Debug().Str("key", k).Dur("ttl", e.TTL()).Msg("Memory cache hit")
		return &Result{Data: bytes.Clone(e.Data), Layer: LayerMemory, Negative: e.Negative}, nil
	}

	ch := t.group.DoChan(k, func() (any, error) {
		return t.fill(key, opts, load)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			SharedWaits.WithLabelValues(string(key.Kind)).Inc()
		}
		res := *r.Val.(*Result)
		res.Data = bytes.Clone(res.Data)
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill runs once per key at a time.
func (t *Tiered) fill(key Key, opts LoadOptions, load Loader) (*Result, error) {
	k := key.String()
	kind := string(key.Kind)
	memoryTTL := pick(opts.MemoryTTL, t.config.MemoryTTL)

	ctx, cancel := context.WithTimeout(context.Background(), t.config.LoadTimeout)
	defer cancel()

	// a fill that finished just before this one started may have populated memory
	if e, ok := t.memory.Fresh(k); ok {
		CacheHits.WithLabelValues(LayerMemory).Inc()
		return &Result{Data: e.Data, Layer: LayerMemory, Negative: e.Negative}, nil
	}

	if t.kv != nil {
		kctx, kcancel := context.WithTimeout(ctx, t.config.KVTimeout)
		e, err := t.kv.Get(kctx, key)
		kcancel()
		switch {
		case err == nil:
			CacheHits.WithLabelValues(LayerKV).Inc()
			if e.Negative {
				// a recent failure still leaves an older good copy servable
				if stale, ok := t.memory.Get(k); ok && !stale.Negative {
					t.logger.Debug().Str("key", k).Dur("age", stale.Age()).Msg("Negative KV entry, serving stale copy")
					return &Result{Data: stale.Data, Layer: LayerMemory, Stale: true}, nil
				}
			}
			t.memory.Set(k, promoted(e, memoryTTL))
			t.logger.Debug().Str("key", k).Bool("negative", e.Negative).Msg("KV cache hit")
			return &Result{Data: e.Data, Layer: LayerKV, Negative: e.Negative}, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			t.logger.Warn().Err(err).Str("key", k).Msg("KV cache get error")
		}
	}

	if t.disk != nil {
		data, err := t.disk.Read(key)
		switch {
		case err == nil:
			CacheHits.WithLabelValues(LayerDisk).Inc()
			t.memory.Set(k, NewEntry(data, memoryTTL))
			t.logger.Debug().Str("key", k).Msg("Disk cache hit")
			return &Result{Data: data, Layer: LayerDisk}, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			t.logger.Warn().Err(err).Str("key", k).Msg("Disk cache read error")
		}
	}

	CacheMisses.WithLabelValues(kind).Inc()
	start := time.Now()
	data, err := load(ctx)
	if err != nil {
		return t.loadFailed(ctx, key, opts, err)
	}

	CacheLoads.WithLabelValues(kind, "ok").Inc()
	t.logger.Info().
		Str("key", k).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Loaded from upstream")

	if t.kv != nil {
		kctx, kcancel := context.WithTimeout(ctx, t.config.KVTimeout)
		if err := t.kv.Set(kctx, key, NewEntry(data, pick(opts.KVTTL, t.config.KVTTL))); err != nil {
			t.logger.Warn().Err(err).Str("key", k).Msg("KV cache write failed")
		}
		kcancel()
	}
	if t.disk != nil {
		if err := t.disk.Write(key, data); err != nil {
			t.logger.Warn().Err(err).Str("key", k).Msg("Disk cache write failed")
		}
	}
	t.memory.Set(k, NewEntry(data, memoryTTL))

	return &Result{Data: data, Layer: LayerUpstream}, nil
}

// loadFailed records a failed load. A stale memory copy is served if one
// exists; otherwise the error is returned. Errors wrapping ErrFinal are
// never answered from a stale copy and remove key from every tier.
func (t *Tiered) loadFailed(ctx context.Context, key Key, opts LoadOptions, loadErr error) (*Result, error) {
	k := key.String()
	kind := string(key.Kind)

	if errors.Is(loadErr, ErrFinal) {
		CacheLoads.WithLabelValues(kind, "final").Inc()
		t.logger.Info().Err(loadErr).Str("key", k).Msg("Upstream answered final error, dropping cached copies")
		if err := t.Invalidate(context.WithoutCancel(ctx), key); err != nil {
			t.logger.Warn().Err(err).Str("key", k).Msg("Dropping cached copies failed")
		}
		return nil, loadErr
	}

	if opts.NegativeTTL > 0 && t.kv != nil {
		kctx, kcancel := context.WithTimeout(context.WithoutCancel(ctx), t.config.KVTimeout)
		if err := t.kv.Set(kctx, key, NewNegativeEntry(opts.NegativeTTL)); err != nil {
			t.logger.Warn().Err(err).Str("key", k).Msg("Negative cache write failed")
		} else {
			NegativeWrites.WithLabelValues(kind).Inc()
		}
		kcancel()
	}

	if e, ok := t.memory.Get(k); ok && !e.Negative {
		CacheLoads.WithLabelValues(kind, "stale").Inc()
		t.logger.Warn().
			Err(loadErr).
			Str("key", k).
			Dur("age", e.Age()).
			Msg("Upstream load failed, serving stale copy")
		return &Result{Data: e.Data, Layer: LayerMemory, Stale: true}, nil
	}

	CacheLoads.WithLabelValues(kind, "error").Inc()
	t.logger.Error().Err(loadErr).Str("key", k).Msg("Upstream load failed")
	return nil, loadErr
}

// Invalidate removes key from every tier.
func (t *Tiered) Invalidate(ctx context.Context, key Key) error {
	t.memory.Delete(key.String())

	var errs []error
	if t.kv != nil {
		kctx, cancel := context.WithTimeout(ctx, t.config.KVTimeout)
		errs = append(errs, t.kv.Delete(kctx, key))
		cancel()
	}
	if t.disk != nil {
		errs = append(errs, t.disk.Delete(key))
	}
	return errors.Join(errs...)
}

// InvalidateHandleSets removes every handle-keyed entry of kind for store
// from every tier.
func (t *Tiered) InvalidateHandleSets(ctx context.Context, kind Kind, store string) error {
	prefix := HandlePrefix(kind, store)
	n := t.memory.DeletePrefix(prefix)

	var errs []error
	if t.kv != nil {
		kctx, cancel := context.WithTimeout(ctx, t.config.KVTimeout)
		errs = append(errs, t.kv.DeletePrefix(kctx, prefix))
		cancel()
	}
	if t.disk != nil {
		errs = append(errs, t.disk.DeleteHandleSets(kind))
	}
	t.logger.Debug().Str("prefix", prefix).Int("memory_entries", n).Msg("Handle sets invalidated")
	return errors.Join(errs...)
}

// promoted converts a KV entry into a memory entry. Negative entries keep
// their remaining lifetime so they are not served longer than intended.
func promoted(e *Entry, memoryTTL time.Duration) *Entry {
	if e.Negative {
		out := *e
		return &out
	}
	out := NewEntry(e.Data, memoryTTL)
	if e.Expires.Before(out.Expires) {
		out.Expires = e.Expires
	}
	return out
}

func pick(override, fallback time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return fallback
}
