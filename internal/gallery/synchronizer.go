package gallery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
)

const (
	DefaultPollInterval  = 2000 * time.Millisecond
	DefaultRemovalFade   = 500 * time.Millisecond
	DefaultFadeIn        = 500 * time.Millisecond
	DefaultUploadsPrefix = "/uploads/"
)

// Lister fetches the full current photo listing
type Lister interface {
	List(ctx context.Context) ([]models.GalleryImage, error)
}

// Options tunes a Synchronizer. Zero values fall back to the defaults.
type Options struct {
	PollInterval  time.Duration
	RemovalFade   time.Duration
	FadeIn        time.Duration
	UploadsPrefix string
	Scheduler     Scheduler
	Logger        *observability.Logger
	Metrics       *observability.SyncMetrics
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RemovalFade <= 0 {
		o.RemovalFade = DefaultRemovalFade
	}
	if o.FadeIn <= 0 {
		o.FadeIn = DefaultFadeIn
	}
	if o.UploadsPrefix == "" {
		o.UploadsPrefix = DefaultUploadsPrefix
	}
	if o.Scheduler == nil {
		o.Scheduler = ClockScheduler()
	}
	if o.Logger == nil {
		o.Logger = observability.GetLogger()
	}
	return o
}

// ReconcileResult lists the IDs touched by one reconciliation pass
type ReconcileResult struct {
	Inserted []string
	Updated  []string
	Removed  []string
}

// Changed reports whether the pass created or removed any element
func (r ReconcileResult) Changed() bool {
	return len(r.Inserted) > 0 || len(r.Removed) > 0
}

// pendingRemoval is an element in its exit transition whose ID has already
// left the displayed set
type pendingRemoval struct {
	el    Element
	timer Timer
}

// Synchronizer keeps a Renderer consistent with a Lister. The keys of
// displayed are the displayed set; each maps to the one live element for
// that ID.
type Synchronizer struct {
	lister   Lister
	renderer Renderer
	opts     Options
	logger   *observability.Logger

	mu        sync.Mutex
	displayed map[string]Element
	pending   map[*pendingRemoval]struct{}

	trigger chan struct{}
}

// NewSynchronizer creates a Synchronizer with an empty displayed set
func NewSynchronizer(lister Lister, renderer Renderer, opts Options) *Synchronizer {
	opts = opts.withDefaults()
	return &Synchronizer{
		lister:    lister,
		renderer:  renderer,
		opts:      opts,
		logger:    opts.Logger.WithField("component", "gallery-sync"),
		displayed: make(map[string]Element),
		pending:   make(map[*pendingRemoval]struct{}),
		trigger:   make(chan struct{}, 1),
	}
}

// Start runs the poll loop in the background and returns a function that
// stops it and waits for the in-flight cycle to finish.
func (s *Synchronizer) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Run polls immediately, then every PollInterval and whenever Trigger is
// called, until ctx is cancelled. A failed poll never stops the loop.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	_ = s.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = s.PollOnce(ctx)
		case <-s.trigger:
			_ = s.PollOnce(ctx)
		}
	}
}

// Trigger asks a running loop for an early poll. Calls coalesce.
func (s *Synchronizer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// PollOnce fetches the listing and reconciles it. On fetch failure the
// error is logged and returned, and the rendered gallery is left untouched.
func (s *Synchronizer) PollOnce(ctx context.Context) error {
	ctx, span := observability.StartServiceSpan(ctx, "gallery", "poll")
	defer span.End()

	start := time.Now()
	photos, err := s.lister.List(ctx)
	if err != nil {
		s.opts.Metrics.RecordPoll(ctx, time.Since(start), err)
		observability.RecordError(span, err)
		s.logger.WithContext(ctx).Warnf("Error fetching images: %v", err)
		return err
	}

	result := s.Reconcile(photos)
	s.opts.Metrics.RecordPoll(ctx, time.Since(start), nil)
	s.opts.Metrics.RecordReconcile(ctx, len(result.Inserted), len(result.Removed), s.DisplayedCount())
	observability.SetSuccess(span)

	if result.Changed() {
		s.logger.WithContext(ctx).Debugf("Gallery reconciled: %d inserted, %d removed, %d updated",
			len(result.Inserted), len(result.Removed), len(result.Updated))
	}
	return nil
}

// Reconcile applies one listing to the displayed set. Photos missing from
// the listing start fading out and leave the set at once; their elements are
// removed when the fade finishes. New photos are appended in listing order.
// Known photos past their lifetime get their opacity updated.
func (s *Synchronizer) Reconcile(incoming []models.GalleryImage) ReconcileResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result ReconcileResult

	incomingIDs := make(map[string]struct{}, len(incoming))
	for _, p := range incoming {
		incomingIDs[p.ID] = struct{}{}
	}

	for id := range s.displayed {
		if _, ok := incomingIDs[id]; !ok {
			result.Removed = append(result.Removed, id)
		}
	}
	sort.Strings(result.Removed)

	for _, id := range result.Removed {
		el := s.displayed[id]
		delete(s.displayed, id)
		s.scheduleRemovalLocked(el)
	}

	for _, p := range incoming {
		if el, ok := s.displayed[p.ID]; ok {
			if p.Age > p.Lifetime {
				el.SetOpacity(Opacity(p.Age, p.Lifetime, p.FadeoutDuration))
				result.Updated = append(result.Updated, p.ID)
			}
			continue
		}

		el := s.renderer.Append(p.ID, s.opts.UploadsPrefix+p.Filename, p.Comment)
		el.FadeIn(s.opts.FadeIn)
		s.displayed[p.ID] = el
		result.Inserted = append(result.Inserted, p.ID)
	}

	return result
}

func (s *Synchronizer) scheduleRemovalLocked(el Element) {
	el.FadeOut(s.opts.RemovalFade)

	pr := &pendingRemoval{el: el}
	s.pending[pr] = struct{}{}
	pr.timer = s.opts.Scheduler.AfterFunc(s.opts.RemovalFade, func() {
		s.finishRemoval(pr)
	})
}

func (s *Synchronizer) finishRemoval(pr *pendingRemoval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[pr]; !ok {
		return
	}
	delete(s.pending, pr)
	pr.el.Remove()
}

// Displayed returns the displayed set, sorted
func (s *Synchronizer) Displayed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.displayed))
	for id := range s.displayed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisplayedCount returns the size of the displayed set
func (s *Synchronizer) DisplayedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.displayed)
}

// PendingRemovals returns how many elements are still in their exit transition
func (s *Synchronizer) PendingRemovals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close cancels every pending removal and removes those elements right away.
// Displayed elements are left as they are.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pr := range s.pending {
		pr.timer.Stop()
		pr.el.Remove()
		delete(s.pending, pr)
	}
}
