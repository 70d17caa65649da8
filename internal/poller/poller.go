// Package poller drives the recurring fetch-classify-deliver cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/relaypan/internal/classify"
	"github.com/ppiankov/relaypan/internal/media"
	"github.com/ppiankov/relaypan/internal/message"
	"github.com/ppiankov/relaypan/internal/source"
	"github.com/ppiankov/relaypan/internal/store"
	"github.com/ppiankov/relaypan/internal/telegram"
)

// Lister lists the newest submissions of a subreddit.
type Lister interface {
	ListNew(ctx context.Context, subreddit string, limit int) ([]source.Submission, error)
}

// DedupStore answers membership for delivered identifiers and records new
// ones durably.
type DedupStore interface {
	Contains(name string) bool
	Commit(ctx context.Context, d store.Delivery) error
	Cap(ctx context.Context, max int) (int64, error)
	Len() int
}

// Sink delivers formatted notifications.
type Sink interface {
	SendText(ctx context.Context, text string) error
	SendPhotoURL(ctx context.Context, photoURL, caption string) error
	SendVideoFile(ctx context.Context, path, caption string) error
}

// Acquirer fetches hosted video into a local file.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*media.File, error)
}

// Subreddit is one polled feed with its cadence and per-cycle fetch cap.
type Subreddit struct {
	Name  string
	Limit int
	Every time.Duration
}

// Config is the static poller configuration.
type Config struct {
	Subreddits      []Subreddit
	Interval        time.Duration // base tick of the loop
	MaxParallel     int           // concurrent subreddit workers per cycle
	SendTextPosts   bool          // deliver text-only submissions
	SkipNSFW        bool          // skip (but commit) submissions marked over 18
	MaxStoreEntries int           // durable dedup cap, 0 = unbounded
}

// Deps are the poller's collaborators.
type Deps struct {
	Lister    Lister
	Store     DedupStore
	Sink      Sink
	Acquirer  Acquirer
	Formatter *message.Formatter
	Log       *logrus.Logger
}

// Poller runs the poll cycle. Fetching, classification and media acquisition
// may run concurrently across subreddits; delivery and dedup commit are
// serialized so the sink's single rate ceiling and the per-source ordering
// guarantee both hold.
type Poller struct {
	cfg  Config
	deps Deps
	log  *logrus.Logger

	deliverMu sync.Mutex

	mu         sync.Mutex
	lastPolled map[string]time.Time

	startedAt time.Time
	firstRun  bool
}

func New(cfg Config, deps Deps) (*Poller, error) {
	if len(cfg.Subreddits) == 0 {
		return nil, errors.New("poller: at least one subreddit is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if deps.Lister == nil || deps.Store == nil || deps.Sink == nil || deps.Formatter == nil {
		return nil, errors.New("poller: lister, store, sink and formatter are required")
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Poller{
		cfg:        cfg,
		deps:       deps,
		log:        log,
		lastPolled: make(map[string]time.Time),
	}, nil
}

// Run executes cycles until ctx is cancelled. The inter-cycle sleep is
// interruptible; a cancellation during a cycle lets the in-flight submission
// step finish or abort without corrupting the dedup store.
func (p *Poller) Run(ctx context.Context) error {
	p.startedAt = time.Now()
	p.firstRun = p.deps.Store.Len() == 0

	p.log.WithFields(logrus.Fields{
		"subreddits": len(p.cfg.Subreddits),
		"interval":   p.cfg.Interval,
	}).Info("poller started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		p.RunCycle(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle polls every subreddit whose cadence has elapsed. Per-source
// failures are logged and skipped; they never abort the cycle.
func (p *Poller) RunCycle(ctx context.Context) {
	if p.startedAt.IsZero() {
		p.startedAt = time.Now()
		p.firstRun = p.deps.Store.Len() == 0
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxParallel)

	for _, sub := range p.cfg.Subreddits {
		if !p.due(sub) {
			continue
		}
		g.Go(func() error {
			p.pollSubreddit(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	if p.cfg.MaxStoreEntries > 0 {
		if n, err := p.deps.Store.Cap(ctx, p.cfg.MaxStoreEntries); err != nil {
			p.log.WithError(err).Warn("cap dedup store")
		} else if n > 0 {
			p.log.WithField("pruned", n).Debug("capped dedup store")
		}
	}
}

func (p *Poller) due(sub Subreddit) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.lastPolled[sub.Name]
	if ok && time.Since(last) < sub.Every {
		return false
	}
	p.lastPolled[sub.Name] = time.Now()
	return true
}

func (p *Poller) pollSubreddit(ctx context.Context, sub Subreddit) {
	log := p.log.WithField("subreddit", sub.Name)

	subs, err := p.deps.Lister.ListNew(ctx, sub.Name, sub.Limit)
	if err != nil {
		kind := "fetch"
		switch {
		case errors.Is(err, source.ErrUnauthorized):
			kind = "auth"
		case errors.Is(err, source.ErrRateLimited):
			kind = "rate-limit"
		}
		log.WithError(err).WithField("kind", kind).Warn("source fetch failed, skipping this cycle")
		return
	}
	if len(subs) == 0 {
		return
	}

	// The listing is newest-first; deliver oldest-first so notifications
	// stay chronological within the batch.
	for i := len(subs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		s := subs[i]
		if p.deps.Store.Contains(s.Name) {
			continue
		}
		p.processSubmission(ctx, s)
	}
}

func (p *Poller) processSubmission(ctx context.Context, sub source.Submission) {
	res := classify.Classify(sub)
	log := p.log.WithFields(logrus.Fields{
		"subreddit": sub.Subreddit,
		"id":        sub.Name,
		"category":  string(res.Category),
	})

	if p.firstRun && sub.CreatedAt.Before(p.startedAt) {
		log.Debug("back catalog, committing without delivery")
		p.commit(ctx, sub, res, log)
		return
	}
	if p.cfg.SkipNSFW && sub.Over18 {
		log.Debug("nsfw submission skipped")
		p.commit(ctx, sub, res, log)
		return
	}
	if !p.cfg.SendTextPosts && res.Category == classify.Text {
		log.Debug("text-only submission skipped")
		p.commit(ctx, sub, res, log)
		return
	}

	caption := p.deps.Formatter.Format(sub, res)

	var file *media.File
	degraded := false
	if res.Category == classify.HostedVideo {
		var err error
		file, err = p.acquire(ctx, res.MediaURL, log)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			degraded = true
		}
	}
	if file != nil {
		defer file.Release()
	}

	terminal := p.deliver(ctx, sub, res, caption, file, degraded, log)
	if terminal {
		p.commit(ctx, sub, res, log)
	}
}

func (p *Poller) acquire(ctx context.Context, url string, log *logrus.Entry) (*media.File, error) {
	if p.deps.Acquirer == nil {
		return nil, errors.New("no acquirer configured")
	}
	file, err := p.deps.Acquirer.Acquire(ctx, url)
	if err != nil {
		kind := "acquire"
		switch {
		case errors.Is(err, media.ErrTooLarge):
			kind = "too-large"
		case errors.Is(err, media.ErrTimeout):
			kind = "timeout"
		}
		log.WithError(err).WithField("kind", kind).Warn("media acquisition failed, degrading to link message")
		return nil, err
	}
	return file, nil
}

// deliver sends the payload and reports whether the outcome is terminal.
// Terminal means success or a rejection that retrying cannot fix; only
// terminal outcomes are committed to the dedup store.
func (p *Poller) deliver(ctx context.Context, sub source.Submission, res classify.Result, caption string, file *media.File, degraded bool, log *logrus.Entry) bool {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	var err error
	switch {
	case degraded:
		err = p.deps.Sink.SendText(ctx, p.deps.Formatter.Degraded(caption, sub))
	case res.Category == classify.HostedVideo:
		err = p.deps.Sink.SendVideoFile(ctx, file.Path, caption)
	case res.Category == classify.Image:
		err = p.deps.Sink.SendPhotoURL(ctx, res.MediaURL, caption)
	default:
		err = p.deps.Sink.SendText(ctx, caption)
	}

	if err == nil {
		log.Info("delivered")
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	if errors.Is(err, telegram.ErrRejected) {
		log.WithError(err).WithField("kind", "rejected").Warn("delivery rejected")

		// One degraded text attempt before declaring the submission done,
		// so a broken media reference still produces a notification.
		if !degraded && res.Category != classify.Text {
			if ferr := p.deps.Sink.SendText(ctx, p.deps.Formatter.Degraded(caption, sub)); ferr != nil {
				log.WithError(ferr).Warn("degraded fallback failed")
			} else {
				log.Info("delivered degraded fallback")
			}
		}
		return true
	}

	log.WithError(err).WithField("kind", "rate-limited").Warn("delivery not completed, will retry next cycle")
	return false
}

// commit records the identifier durably. A failed write is logged and left
// uncommitted so the submission is retried next cycle.
func (p *Poller) commit(ctx context.Context, sub source.Submission, res classify.Result, log *logrus.Entry) {
	err := p.deps.Store.Commit(ctx, store.Delivery{
		Name:        sub.Name,
		Subreddit:   sub.Subreddit,
		Category:    string(res.Category),
		Title:       sub.Title,
		DeliveredAt: time.Now(),
	})
	if err != nil {
		log.WithError(err).WithField("kind", "store-io").Error("dedup commit failed, submission will be retried")
	}
}

// String describes the poller configuration for startup logging.
func (p *Poller) String() string {
	return fmt.Sprintf("poller(%d subreddits, every %s)", len(p.cfg.Subreddits), p.cfg.Interval)
}
