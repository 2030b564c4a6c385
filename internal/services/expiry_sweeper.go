package services

import (
	"context"
	"sync"
	"time"

	"github.com/snappic/server/internal/observability"
)

// ExpirySweeper periodically deletes photos that have fully faded out
type ExpirySweeper struct {
	gallery  *GalleryService
	interval time.Duration
	logger   *observability.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewExpirySweeper creates a sweeper running every interval
func NewExpirySweeper(gallery *GalleryService, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		gallery:  gallery,
		interval: interval,
		logger:   observability.WithField("component", "expiry-sweeper"),
	}
}

// Start begins the background sweep loop
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan != nil {
		return // Already started
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Infof("Expiry sweeper started (runs every %s)", s.interval)
	go s.loop(s.stopChan, s.done)
}

func (s *ExpirySweeper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-stop:
			s.logger.Info("Expiry sweeper stopped")
			return
		}
	}
}

// RunOnce performs a single sweep. Errors are logged; the next tick retries.
func (s *ExpirySweeper) RunOnce(ctx context.Context) int {
	removed, err := s.gallery.Expire(ctx)
	if err != nil {
		s.logger.Errorf("Error expiring photos: %v", err)
	}
	if removed > 0 {
		s.logger.Debugf("Expired %d photos", removed)
	}
	return removed
}

// Stop stops the sweeper and waits for the loop to exit
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if s.stopChan == nil {
		s.mu.Unlock()
		return // Already stopped
	}
	close(s.stopChan)
	done := s.done
	s.stopChan = nil
	s.mu.Unlock()

	<-done
}
