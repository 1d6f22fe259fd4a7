package upload

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/pkg/types"
	"github.com/tkarren/castbucket/pkg/utils"
)

// FinishRequest carries a completion signal for an upload
type FinishRequest struct {
	UploadID   string
	Slot       int
	DurationMs int64
	Owner      string
	Token      string
}

// FinishResult identifies the finalized artifact
type FinishResult struct {
	ID  string
	URL string
}

// artifactName builds the deterministic human-readable name of a finalized
// recording: owner, slot label, and a UTC timestamp.
func artifactName(owner string, slot int, ext string, at time.Time) string {
	return fmt.Sprintf("%s-recording%d-%s%s", owner, slot, at.UTC().Format("20060102T150405"), ext)
}

// Finish closes an upload session and promotes its staging file into the
// recordings directory. When the live session was lost to a restart, ownership
// is reconstructed from the durable marker and the staging file is located by
// probing the known extension set.
func (m *Manager) Finish(ctx context.Context, req *FinishRequest) (*FinishResult, error) {
	if req.UploadID == "" {
		return nil, errValidation("uploadId is required")
	}
	if !m.validSlot(req.Slot) {
		return nil, errValidation("slot %d out of range 1..%d", req.Slot, m.cfg.MaxSlots)
	}

	if sess, exists := m.getSession(req.UploadID); exists {
		result, err := m.finishLive(ctx, sess, req)
		if err == nil || !isSessionGone(err) {
			return result, err
		}
		// The session disappeared between lookup and lock (reaped or finalized
		// concurrently); fall through to the durable-state path.
	}

	return m.finishFromDisk(ctx, req)
}

// errSessionGone signals internally that a looked-up session closed mid-flight.
type sessionGoneError struct{}

func (sessionGoneError) Error() string { return "session closed mid-flight" }

func isSessionGone(err error) bool {
	_, ok := err.(sessionGoneError)
	return ok
}

func (m *Manager) finishLive(ctx context.Context, sess *Session, req *FinishRequest) (*FinishResult, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return nil, sessionGoneError{}
	}
	if sess.Owner != req.Owner {
		return nil, errAuthorization("upload %s belongs to a different owner", req.UploadID)
	}
	if sess.Slot != req.Slot {
		return nil, errConflict(sess.ExpectedIndex, "slot %d does not match session slot %d", req.Slot, sess.Slot)
	}
	if sess.BytesWritten == 0 {
		return nil, errValidation("upload %s received no media", req.UploadID)
	}

	name := artifactName(sess.Owner, sess.Slot, sess.Extension, m.now())
	finalPath := path.Join(m.layout.RecordingsDir, name)

	// The rename is the commit point. On failure everything is left in place
	// so a retried finish can still succeed.
	if err := m.store.Rename(ctx, sess.StagingPath, finalPath); err != nil {
		return nil, errStorage(err, "failed to finalize upload %s", req.UploadID)
	}

	sess.closed = true
	m.removeSession(sess)

	if err := m.store.Delete(ctx, sess.MarkerPath); err != nil {
		log.Warn().Err(err).Str("upload_id", req.UploadID).Msg("failed to delete ownership marker")
	}

	m.catalogEntry(ctx, req, name, sess.MimeType, sess.BytesWritten)

	log.Info().
		Str("upload_id", req.UploadID).
		Str("artifact", name).
		Int64("bytes", sess.BytesWritten).
		Msg("upload finalized")

	return &FinishResult{ID: req.UploadID, URL: recordingURL(name)}, nil
}

// finishFromDisk handles a finish request with no live session: the process
// restarted after chunks were written. Ownership comes from the sidecar
// marker; the staging file is found by trying each known extension.
func (m *Manager) finishFromDisk(ctx context.Context, req *FinishRequest) (*FinishResult, error) {
	markerPath := m.markerPath(req.UploadID)

	marker, err := m.store.ReadFile(ctx, markerPath)
	if err != nil {
		return nil, errNotFound("unknown upload %s", req.UploadID)
	}

	if string(marker) != utils.HashToken(req.Token) {
		return nil, errAuthorization("token does not match recorded owner of upload %s", req.UploadID)
	}

	for _, ext := range probeExtensions {
		stagingPath := m.stagingPath(req.UploadID, ext)

		exists, err := m.store.Exists(ctx, stagingPath)
		if err != nil {
			return nil, errStorage(err, "failed to probe staging file for %s", req.UploadID)
		}
		if !exists {
			continue
		}

		info, err := m.store.Stat(ctx, stagingPath)
		if err != nil {
			return nil, errStorage(err, "failed to stat staging file for %s", req.UploadID)
		}
		if info.Size == 0 {
			return nil, errValidation("upload %s received no media", req.UploadID)
		}

		name := artifactName(req.Owner, req.Slot, ext, m.now())
		finalPath := path.Join(m.layout.RecordingsDir, name)

		if err := m.store.Rename(ctx, stagingPath, finalPath); err != nil {
			return nil, errStorage(err, "failed to finalize upload %s", req.UploadID)
		}

		if err := m.store.Delete(ctx, markerPath); err != nil {
			log.Warn().Err(err).Str("upload_id", req.UploadID).Msg("failed to delete ownership marker")
		}

		m.catalogEntry(ctx, req, name, mimeForExtension(ext), info.Size)

		log.Info().
			Str("upload_id", req.UploadID).
			Str("artifact", name).
			Int64("bytes", info.Size).
			Msg("upload finalized from durable state after restart")

		return &FinishResult{ID: req.UploadID, URL: recordingURL(name)}, nil
	}

	return nil, errNotFound("no staging data found for upload %s", req.UploadID)
}

// catalogEntry writes the recording's row to the catalog. The catalog is a
// write-behind index: a failed upsert is logged, never surfaced, because the
// artifact itself is already durable.
func (m *Manager) catalogEntry(ctx context.Context, req *FinishRequest, name, mimeType string, bytes int64) {
	if m.catalog == nil {
		return
	}

	rec := &types.Recording{
		ID:         req.UploadID,
		URL:        recordingURL(name),
		MimeType:   mimeType,
		Bytes:      bytes,
		DurationMs: req.DurationMs,
		CreatedAt:  m.now(),
	}
	if err := m.catalog.Upsert(ctx, rec); err != nil {
		log.Error().Err(err).Str("upload_id", req.UploadID).Msg("failed to catalog recording")
	}
}

func recordingURL(name string) string {
	return "/recordings/files/" + name
}
