package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const dueKey = "due"

// TriggerDue starts a due-sites run in the background and returns its ID.
// A second trigger while one is running returns ErrAlreadyRunning with the
// running ID.
func (s *Scheduler) TriggerDue(context.Context) (string, error) {
	return s.start(dueKey, func(ctx context.Context, runID string) {
		if _, err := s.runDue(ctx, runID); err != nil {
			s.logger.Error("due run failed", zap.String("run_id", runID), zap.Error(err))
		}
	})
}

// TriggerSite validates the site synchronously, then crawls it in the
// background.
func (s *Scheduler) TriggerSite(ctx context.Context, name string) (string, error) {
	site, err := s.repo.SiteByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("lookup site: %w", err)
	}
	return s.start(siteKey(site.Name), func(ctx context.Context, runID string) {
		s.crawlSite(ctx, runID, site)
	})
}

// Loop runs the due check every tick until ctx is done.
func (s *Scheduler) Loop(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = 24 * time.Hour
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.TriggerDue(ctx); err != nil {
				s.logger.Info("scheduled due run skipped", zap.Error(err))
			}
		}
	}
}

// Wait blocks until every triggered run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels triggered runs and waits for them to return.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// Running reports whether a run is in flight for key ("due" or a site name).
func (s *Scheduler) Running(key string) bool {
	if key != dueKey {
		key = siteKey(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[key]
	return ok
}

func (s *Scheduler) start(key string, run func(ctx context.Context, runID string)) (string, error) {
	s.mu.Lock()
	if running, ok := s.inFlight[key]; ok {
		s.mu.Unlock()
		return running, ErrAlreadyRunning
	}
	runID, err := s.ids.NewID()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("new run id: %w", err)
	}
	if err := s.baseCtx.Err(); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler closed: %w", err)
	}
	s.inFlight[key] = runID
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, key)
			s.mu.Unlock()
		}()
		run(s.baseCtx, runID)
	}()
	return runID, nil
}
