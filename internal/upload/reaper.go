package upload

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper discards abandoned upload sessions and their on-disk remains. It
// runs on a fixed interval but every sweep is also invokable synchronously,
// which is how the tests drive it.
type Reaper struct {
	manager  *Manager
	interval time.Duration
}

// NewReaper creates a reaper over the given manager
func NewReaper(manager *Manager, interval time.Duration) *Reaper {
	return &Reaper{
		manager:  manager,
		interval: interval,
	}
}

// Run sweeps on the configured interval until the context is cancelled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("session reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one garbage-collection pass: first expiring idle live
// sessions, then deleting orphaned ownership markers left behind by a crash.
// All cleanup failures are logged and swallowed; collection is best-effort
// and self-healing on the next pass.
func (r *Reaper) Sweep(ctx context.Context) int {
	reaped := r.sweepSessions(ctx)
	reaped += r.sweepOrphanedMarkers(ctx)
	return reaped
}

func (r *Reaper) sweepSessions(ctx context.Context) int {
	m := r.manager
	cutoff := m.now().Add(-m.cfg.SessionTTL)

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		candidates = append(candidates, sess)
	}
	m.mu.RUnlock()

	reaped := 0
	for _, sess := range candidates {
		sess.mu.Lock()
		expired := !sess.closed && sess.LastActivity.Before(cutoff)
		if expired {
			// Close before teardown so an in-flight chunk or finish for this
			// session observes the closed state instead of racing the deletes.
			sess.closed = true
		}
		sess.mu.Unlock()

		if !expired {
			continue
		}

		m.removeSession(sess)

		if err := m.store.Delete(ctx, sess.StagingPath); err != nil {
			log.Warn().Err(err).Str("upload_id", sess.UploadID).Msg("failed to delete staging file")
		}
		if err := m.store.Delete(ctx, sess.MarkerPath); err != nil {
			log.Warn().Err(err).Str("upload_id", sess.UploadID).Msg("failed to delete ownership marker")
		}

		log.Info().
			Str("upload_id", sess.UploadID).
			Str("owner", sess.Owner).
			Int64("bytes_discarded", sess.BytesWritten).
			Time("last_activity", sess.LastActivity).
			Msg("reaped idle upload session")
		reaped++
	}

	return reaped
}

// sweepOrphanedMarkers deletes ownership markers with no live session that
// have not been touched within the TTL, together with any staging files for
// the same uploadId. This pass is what bounds disk usage when the process
// crashed between session creation and finalize.
func (r *Reaper) sweepOrphanedMarkers(ctx context.Context) int {
	m := r.manager

	paths, err := m.store.List(ctx, m.layout.StagingDir)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list staging directory")
		return 0
	}

	cutoff := m.now().Add(-m.cfg.SessionTTL)
	reaped := 0

	for _, p := range paths {
		base := path.Base(p)
		if !strings.HasSuffix(base, markerSuffix) {
			continue
		}
		uploadID := strings.TrimSuffix(base, markerSuffix)

		if _, live := m.getSession(uploadID); live {
			continue
		}

		info, err := m.store.Stat(ctx, p)
		if err != nil {
			continue
		}
		if !info.ModTime.Before(cutoff) {
			continue
		}

		if err := m.store.Delete(ctx, p); err != nil {
			log.Warn().Err(err).Str("upload_id", uploadID).Msg("failed to delete orphaned marker")
			continue
		}
		for _, ext := range probeExtensions {
			if err := m.store.Delete(ctx, m.stagingPath(uploadID, ext)); err != nil {
				log.Warn().Err(err).Str("upload_id", uploadID).Msg("failed to delete orphaned staging file")
			}
		}

		log.Info().Str("upload_id", uploadID).Msg("reaped orphaned ownership marker")
		reaped++
	}

	return reaped
}
