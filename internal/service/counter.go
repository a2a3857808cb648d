package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/viewtally/viewtally/internal/cache"
	"github.com/viewtally/viewtally/internal/metrics"
	"github.com/viewtally/viewtally/internal/model"
	"github.com/viewtally/viewtally/internal/visitor"
)

// ErrContentNotFound signals a counting attempt against an id that is not
// registered (or was deleted). Such attempts have no side effects.
var ErrContentNotFound = errors.New("content not found")

// Mode selects the client-state transport.
type Mode string

// Transport modes.
const (
	// ModeCookie round-trips the state in chunked cookies held by the client.
	ModeCookie Mode = "cookie"
	// ModeCookieless stores the state server-side under an opaque key the
	// client carries instead of the state itself.
	ModeCookieless Mode = "cookieless"
)

// ViewStore is the durable side of the counting path.
type ViewStore interface {
	IncrementView(ctx context.Context, contentID int64, bucket model.BucketType, periodKey string, amount int64) error
	IncrementAllBuckets(ctx context.Context, contentID int64, keys [5]string, amount int64) error
	ContentExists(ctx context.Context, id int64) (bool, error)
}

// ViewBuffer is the optional write-behind fast path.
type ViewBuffer interface {
	BufferIncrement(ctx context.Context, contentID int64, bucket model.BucketType, periodKey string, amount int64) error
}

// StateStore holds cookie-less visitor state under client-supplied keys.
type StateStore interface {
	GetVisitorState(ctx context.Context, key string) (string, error)
	SetVisitorState(ctx context.Context, key, encoded string, expiresAt time.Time) error
}

// AmountFunc overrides the increment amount for a content id. Results below
// one are floored to one; returning a constant one is the default behaviour.
type AmountFunc func(contentID int64) int64

// CounterConfig carries the counting policy knobs.
type CounterConfig struct {
	// Cooldown is the minimum interval between counted views of the same
	// content by one visitor. Zero counts every visit.
	Cooldown time.Duration
	// Atomic wraps the five bucket upserts in one transaction instead of the
	// default independent best-effort writes.
	Atomic bool
	// FastPath buffers increments in Redis for a later flush instead of
	// writing through to the database on every view.
	FastPath bool
	// Location is the timezone bucket period keys are computed in.
	// Nil means UTC.
	Location *time.Location
}

// Request is one counting attempt arriving from any transport.
type Request struct {
	ContentID  int64
	RawState   string // cookie mode: concatenated chunk values
	VisitorKey string // cookieless mode: opaque key, empty on first contact
	Mode       Mode
	Visitor    Visitor
}

// Result reports the counting outcome plus the refreshed client state for
// whichever transport the request used.
type Result struct {
	ContentID  int64
	Counted    bool
	Chunks     []visitor.Chunk // cookie mode
	VisitorKey string          // cookieless mode
}

// Counter drives the per-request counting flow.
type Counter struct {
	store   ViewStore
	buffer  ViewBuffer // nil when the fast path is unavailable
	states  StateStore // nil disables cookieless mode
	excl    Exclusions
	amount  AmountFunc
	cfg     CounterConfig
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewCounter wires the counting orchestrator. buffer and states may be nil;
// amount may be nil for the default increment of one.
func NewCounter(store ViewStore, buffer ViewBuffer, states StateStore, excl Exclusions, amount AmountFunc, cfg CounterConfig, logger *slog.Logger, recorder metrics.Recorder) *Counter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if amount == nil {
		amount = func(int64) int64 { return 1 }
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Counter{
		store:   store,
		buffer:  buffer,
		states:  states,
		excl:    excl,
		amount:  amount,
		cfg:     cfg,
		logger:  logger.With("component", "service.counter"),
		metrics: recorder,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Counter) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Process runs one counting attempt. It never returns an error for expected
// conditions: malformed state, exclusions, and dedup suppression all produce
// a normal "not counted" result. Only an unusable content id or a completely
// unreachable store surface as errors to the transport layer.
func (c *Counter) Process(ctx context.Context, req Request) (Result, error) {
	start := c.now()
	res := Result{ContentID: req.ContentID}

	if req.ContentID <= 0 {
		c.metrics.IncViewProcessed("invalid")
		return res, ErrContentNotFound
	}
	exists, err := c.store.ContentExists(ctx, req.ContentID)
	if err != nil {
		return res, err
	}
	if !exists {
		c.metrics.IncViewProcessed("invalid")
		return res, ErrContentNotFound
	}

	state, visitorKey, err := c.loadState(ctx, req)
	if err != nil {
		return res, err
	}
	res.VisitorKey = visitorKey

	now := c.now().In(c.cfg.Location)

	if !c.excl.ShouldCount(req.Visitor) {
		// Not counted, but hand the normalized state back so the client does
		// not accumulate drift.
		c.metrics.IncViewProcessed("excluded")
		return c.finish(ctx, req, res, state, false), nil
	}

	decision := visitor.Decide(state, req.ContentID, c.cfg.Cooldown, now)
	if !decision.ShouldCount {
		c.metrics.IncViewProcessed("deduped")
		return c.finish(ctx, req, res, decision.State, false), nil
	}

	c.recordView(ctx, req.ContentID, now)
	c.metrics.IncViewProcessed("counted")
	c.metrics.ObserveCountDuration(c.now().Sub(start))
	return c.finish(ctx, req, res, decision.State, true), nil
}

// loadState decodes the prior visitor state for either transport. A missing
// or malformed state is a first visit; cookieless visitors without a key get
// a fresh one.
func (c *Counter) loadState(ctx context.Context, req Request) (visitor.State, string, error) {
	if req.Mode != ModeCookieless {
		return visitor.Decode(req.RawState), "", nil
	}

	if c.states == nil {
		return visitor.NewState(), "", errors.New("cookieless mode is not configured")
	}

	key := req.VisitorKey
	if key == "" || !validVisitorKey(key) {
		return visitor.NewState(), ulid.Make().String(), nil
	}

	encoded, err := c.states.GetVisitorState(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return visitor.NewState(), key, nil
	}
	if err != nil {
		// State storage being down must not break counting; treat the
		// visitor as new.
		c.logger.Warn("visitor state unavailable", "error", err)
		return visitor.NewState(), key, nil
	}
	return visitor.Decode(encoded), key, nil
}

// finish encodes the resulting state for the request's transport.
func (c *Counter) finish(ctx context.Context, req Request, res Result, state visitor.State, counted bool) Result {
	res.Counted = counted
	chunks := visitor.Encode(state)

	if req.Mode == ModeCookieless {
		if len(chunks) > 0 && c.states != nil {
			values := make([]string, len(chunks))
			for _, chunk := range chunks {
				values[chunk.Index] = chunk.Value
			}
			encoded := strings.Join(values, "")
			if err := c.states.SetVisitorState(ctx, res.VisitorKey, encoded, state.MaxExpiry()); err != nil {
				c.logger.Warn("failed to persist visitor state",
					"visitor_key", res.VisitorKey,
					"error", err,
				)
			}
		}
		return res
	}

	res.Chunks = chunks
	return res
}

// recordView fans one counted view out across all five buckets. The default
// policy is best-effort: a failing bucket write is logged and the remaining
// buckets still proceed, because the dedup decision, not the write outcome,
// determines the reported result.
func (c *Counter) recordView(ctx context.Context, contentID int64, now time.Time) {
	amount := c.amount(contentID)
	if amount < 1 {
		amount = 1
	}
	keys := model.PeriodKeys(now)

	if c.cfg.Atomic {
		if err := c.store.IncrementAllBuckets(ctx, contentID, keys, amount); err != nil {
			c.metrics.IncBucketWriteFailed()
			c.logger.Error("atomic view write failed",
				"content_id", contentID,
				"error", err,
			)
		}
		return
	}

	for _, bucket := range model.AllBuckets {
		if c.cfg.FastPath && c.buffer != nil {
			if err := c.buffer.BufferIncrement(ctx, contentID, bucket, keys[bucket], amount); err == nil {
				continue
			}
			// Buffer unavailable: fall through to the durable path so the
			// fast path's absence never breaks counting.
		}
		if err := c.store.IncrementView(ctx, contentID, bucket, keys[bucket], amount); err != nil {
			c.metrics.IncBucketWriteFailed()
			c.logger.Error("bucket write failed",
				"content_id", contentID,
				"bucket", bucket.String(),
				"period_key", keys[bucket],
				"error", err,
			)
		}
	}
}

// validVisitorKey keeps client-supplied keys inside the ULID alphabet so
// arbitrary strings cannot address foreign cache namespaces.
func validVisitorKey(key string) bool {
	if len(key) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(key)
	return err == nil
}
