package media

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/schedule"
)

const (
	// DefaultGracePeriod is how long a feed may stay loading before it can be
	// reported as broken.
	DefaultGracePeriod = 5 * time.Second

	// DefaultMinRetries is the number of failed loads required before a feed
	// is reported as broken.
	DefaultMinRetries = 3

	// TokenParam is the query parameter carrying the cache-defeating token.
	TokenParam = "t"
)

// Metrics receives feed measurements.
type Metrics interface {
	RecordFeedLoad(ctx context.Context, duration time.Duration, ok bool)
	RecordFeedPhase(ctx context.Context, phase Phase)
}

// Config holds configuration for a Controller.
type Config struct {
	// Locator builds the feed address for an intersection at a refresh rate.
	Locator func(id string, fps float64) string

	Loader   Loader
	Notifier notice.Notifier
	Logger   zerolog.Logger
	Metrics  Metrics

	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// MinRetries defaults to DefaultMinRetries.
	MinRetries int

	// Quality is the initial tier of new feeds (default: medium).
	Quality Quality

	// LoadTimeout bounds a single load (default: 10s).
	LoadTimeout time.Duration

	// RetryInitialInterval and RetryMaxInterval shape the automatic retry
	// backoff (defaults: 500ms and 5s).
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

type feed struct {
	id      string
	phase   Phase
	err     string
	retries int
	quality Quality
	token   int64
	locator string
	frame   *Frame

	// epoch changes whenever outstanding loads and timers must be forgotten.
	// Epochs and load sequence numbers are unique across the controller, so a
	// reactivated feed never accepts results meant for its predecessor.
	epoch   uint64
	loadSeq uint64
	loading bool
	since   time.Time

	grace   *schedule.Timer
	retry   *schedule.Timer
	refresh *schedule.Periodic
	backoff *backoff.ExponentialBackOff
}

// Controller manages the camera feeds of the active intersections.
type Controller struct {
	locator  func(id string, fps float64) string
	loader   Loader
	notifier notice.Notifier
	logger   zerolog.Logger
	metrics  Metrics
	now      func() time.Time

	grace        time.Duration
	minRetries   int
	quality      Quality
	loadTimeout  time.Duration
	retryInitial time.Duration
	retryMax     time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	changes *notice.Changes

	mu        sync.Mutex
	feeds     map[string]*feed
	lastToken int64
	epochs    uint64
	loads     uint64
	closed    bool
}

// NewController creates a Controller with no active feeds.
func NewController(cfg Config) *Controller {
	if cfg.Notifier == nil {
		cfg.Notifier = notice.Discard
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.MinRetries <= 0 {
		cfg.MinRetries = DefaultMinRetries
	}
	if !cfg.Quality.Valid() {
		cfg.Quality = DefaultQuality
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 10 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		locator:      cfg.Locator,
		loader:       cfg.Loader,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		grace:        cfg.GracePeriod,
		minRetries:   cfg.MinRetries,
		quality:      cfg.Quality,
		loadTimeout:  cfg.LoadTimeout,
		retryInitial: cfg.RetryInitialInterval,
		retryMax:     cfg.RetryMaxInterval,
		ctx:          ctx,
		cancel:       cancel,
		changes:      notice.NewChanges(),
		feeds:        make(map[string]*feed),
	}
}

// Activate starts the feed for an intersection. Activating an active feed is
// a no-op.
func (c *Controller) Activate(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.feeds[id]; ok {
		c.mu.Unlock()
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	b.MaxElapsedTime = 0
	b.Reset()

	c.epochs++
	f := &feed{id: id, quality: c.quality, backoff: b, epoch: c.epochs}
	c.feeds[id] = f
	c.begin(f)
	c.mu.Unlock()

	c.logger.Debug().Str("intersection_id", id).Msg("feed activated")
	c.metrics.RecordFeedPhase(c.ctx, PhaseLoading)
	c.changes.Broadcast()
	return nil
}

// Deactivate tears down a feed and cancels its timers. Loads already in
// flight complete but their results are dropped.
func (c *Controller) Deactivate(id string) error {
	c.mu.Lock()
	f, ok := c.feeds[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownFeed
	}
	c.teardown(f)
	delete(c.feeds, id)
	c.mu.Unlock()

	c.logger.Debug().Str("intersection_id", id).Msg("feed deactivated")
	c.changes.Broadcast()
	return nil
}

// Retry restarts a feed: the error and retry counter are cleared and a new
// load is issued with a new token.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	f, ok := c.feeds[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownFeed
	}
	c.teardown(f)
	f.retries = 0
	f.err = ""
	f.backoff.Reset()
	c.begin(f)
	c.mu.Unlock()

	c.logger.Info().Str("intersection_id", id).Msg("feed retry requested")
	c.metrics.RecordFeedPhase(c.ctx, PhaseLoading)
	c.changes.Broadcast()
	return nil
}

// SetQuality changes a feed's refresh rate. A load already in flight is not
// affected.
func (c *Controller) SetQuality(id string, q Quality) error {
	if !q.Valid() {
		return ErrInvalidQuality
	}

	c.mu.Lock()
	f, ok := c.feeds[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownFeed
	}
	f.quality = q
	if f.refresh != nil {
		f.refresh.Reset(q.Interval())
	}
	c.mu.Unlock()

	c.changes.Broadcast()
	return nil
}

// State returns a snapshot of one feed.
func (c *Controller) State(id string) (FeedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[id]
	if !ok {
		return FeedState{}, ErrUnknownFeed
	}
	return f.state(), nil
}

// States returns snapshots of all feeds ordered by intersection id.
func (c *Controller) States() []FeedState {
	c.mu.Lock()
	out := make([]FeedState, 0, len(c.feeds))
	for _, f := range c.feeds {
		out = append(out, f.state())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].IntersectionID < out[j].IntersectionID })
	return out
}

// Frame returns the most recent frame of a feed.
func (c *Controller) Frame(id string) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[id]
	if !ok {
		return Frame{}, ErrUnknownFeed
	}
	if f.frame == nil {
		return Frame{}, ErrNoFrame
	}
	return *f.frame, nil
}

// Subscribe returns a channel signalled whenever a feed changes.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.changes.Subscribe()
}

// Close tears down every feed. The controller cannot be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, f := range c.feeds {
		c.teardown(f)
		delete(c.feeds, id)
	}
	c.mu.Unlock()

	c.cancel()
	c.changes.Broadcast()
}

// begin enters the loading phase and issues the first load. Callers hold c.mu.
func (c *Controller) begin(f *feed) {
	f.phase = PhaseLoading
	f.since = c.now()
	c.armGrace(f)
	c.load(f)
}

// teardown forgets outstanding loads and stops every timer. Callers hold c.mu.
func (c *Controller) teardown(f *feed) {
	c.epochs++
	f.epoch = c.epochs
	f.loading = false
	f.grace.Stop()
	f.grace = nil
	f.retry.Stop()
	f.retry = nil
	if f.refresh != nil {
		f.refresh.Stop()
		f.refresh = nil
	}
}

// nextToken returns a token strictly greater than every previous one.
// Callers hold c.mu.
func (c *Controller) nextToken() int64 {
	t := c.now().UnixMilli()
	if t <= c.lastToken {
		t = c.lastToken + 1
	}
	c.lastToken = t
	return t
}

// load issues a request with a fresh token. Callers hold c.mu.
func (c *Controller) load(f *feed) {
	f.token = c.nextToken()
	f.locator = withToken(c.locator(f.id, f.quality.FPS()), f.token)
	c.loads++
	f.loadSeq = c.loads
	f.loading = true

	id, epoch, seq, token, locator := f.id, f.epoch, f.loadSeq, f.token, f.locator
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.loadTimeout)
		defer cancel()

		start := c.now()
		frame, err := c.loader.Load(ctx, locator)
		c.metrics.RecordFeedLoad(ctx, c.now().Sub(start), err == nil)
		c.complete(id, epoch, seq, token, frame, err)
	}()
}

// complete applies the outcome of a load unless it was superseded.
func (c *Controller) complete(id string, epoch, seq uint64, token int64, frame Frame, err error) {
	c.mu.Lock()
	f, ok := c.feeds[id]
	if !ok || f.epoch != epoch || f.loadSeq != seq {
		c.mu.Unlock()
		return
	}
	f.loading = false
	before := f.phase

	if err == nil {
		frame.Token = token
		if frame.LoadedAt.IsZero() {
			frame.LoadedAt = c.now()
		}
		f.frame = &frame
		f.phase = PhaseReady
		f.err = ""
		f.retries = 0
		f.backoff.Reset()
		f.grace.Stop()
		f.grace = nil
		f.retry.Stop()
		f.retry = nil
		if f.refresh == nil {
			c.startRefresh(f)
		}
	} else {
		c.fail(f, err)
	}
	after := f.phase
	c.mu.Unlock()

	if after != before {
		c.metrics.RecordFeedPhase(c.ctx, after)
	}
	c.changes.Broadcast()
}

// fail handles a failed load. Callers hold c.mu.
func (c *Controller) fail(f *feed, err error) {
	f.retries++
	c.logger.Debug().Err(err).Str("intersection_id", f.id).Int("retries", f.retries).Msg("feed load failed")

	if f.phase == PhaseReady {
		// Keep showing the last frame while the feed recovers.
		f.phase = PhaseStale
		f.since = c.now()
		f.refresh.Stop()
		f.refresh = nil
		c.armGrace(f)
	}

	if c.expired(f) {
		c.enterError(f, MsgLoadFailed)
		return
	}
	c.scheduleRetry(f)
}

// expired reports whether a loading or stale feed may be reported as broken.
// Callers hold c.mu.
func (c *Controller) expired(f *feed) bool {
	return c.now().Sub(f.since) >= c.grace && f.retries >= c.minRetries
}

// enterError stops the feed until a manual retry. Callers hold c.mu.
func (c *Controller) enterError(f *feed, msg string) {
	c.teardown(f)
	f.phase = PhaseError
	f.err = msg

	c.logger.Warn().Str("intersection_id", f.id).Int("retries", f.retries).Msg("feed unavailable")
	c.notifier.Notify(notice.LevelError, msg)
}

// armGrace schedules the grace check for the current epoch. Callers hold c.mu.
func (c *Controller) armGrace(f *feed) {
	f.grace.Stop()
	id, epoch := f.id, f.epoch
	f.grace = schedule.After(c.grace, func() { c.graceElapsed(id, epoch) })
}

// graceElapsed reports a feed that is still not ready once the grace period
// has passed and enough loads have failed; otherwise it checks again later.
// A load still pending at that point is reported as a timeout.
func (c *Controller) graceElapsed(id string, epoch uint64) {
	c.mu.Lock()
	f, ok := c.feeds[id]
	if !ok || f.epoch != epoch || (f.phase != PhaseLoading && f.phase != PhaseStale) {
		c.mu.Unlock()
		return
	}
	if f.retries < c.minRetries {
		c.armGrace(f)
		c.mu.Unlock()
		return
	}
	msg := MsgLoadTimeout
	if !f.loading {
		msg = MsgLoadFailed
	}
	c.enterError(f, msg)
	c.mu.Unlock()

	c.metrics.RecordFeedPhase(c.ctx, PhaseError)
	c.changes.Broadcast()
}

// scheduleRetry re-issues a load after the next backoff delay. Callers hold c.mu.
func (c *Controller) scheduleRetry(f *feed) {
	f.retry.Stop()
	delay := f.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.retryMax
	}
	id, epoch := f.id, f.epoch
	f.retry = schedule.After(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		f, ok := c.feeds[id]
		if !ok || f.epoch != epoch || f.loading {
			return
		}
		c.load(f)
	})
}

// startRefresh keeps a ready feed live. Callers hold c.mu.
func (c *Controller) startRefresh(f *feed) {
	id, epoch := f.id, f.epoch
	f.refresh = schedule.NewPeriodic(f.quality.Interval(), func(context.Context) {
		c.mu.Lock()
		defer c.mu.Unlock()
		f, ok := c.feeds[id]
		if !ok || f.epoch != epoch || f.phase != PhaseReady || f.loading {
			return
		}
		c.load(f)
	})
	f.refresh.Start(c.ctx)
}

func (f *feed) state() FeedState {
	s := FeedState{
		IntersectionID: f.id,
		Phase:          f.phase,
		Loading:        f.phase == PhaseLoading,
		Error:          f.err,
		Retries:        f.retries,
		Quality:        f.quality,
		FPS:            f.quality.FPS(),
		Token:          f.token,
		Locator:        f.locator,
		HasFrame:       f.frame != nil,
	}
	if f.frame != nil {
		s.LastFrameAt = f.frame.LoadedAt
	}
	return s
}

// withToken sets the cache-defeating token on a locator.
func withToken(locator string, token int64) string {
	v := strconv.FormatInt(token, 10)
	u, err := url.Parse(locator)
	if err != nil {
		sep := "?"
		if strings.Contains(locator, "?") {
			sep = "&"
		}
		return locator + sep + TokenParam + "=" + v
	}
	q := u.Query()
	q.Set(TokenParam, v)
	u.RawQuery = q.Encode()
	return u.String()
}

type noopMetrics struct{}

func (noopMetrics) RecordFeedLoad(context.Context, time.Duration, bool) {}
func (noopMetrics) RecordFeedPhase(context.Context, Phase)              {}
