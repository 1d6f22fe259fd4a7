package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/internal/storage"
	"github.com/tkarren/castbucket/pkg/config"
	"github.com/tkarren/castbucket/pkg/types"
	"github.com/tkarren/castbucket/pkg/utils"
)

// markerSuffix names the durable ownership sidecar next to a staging file.
const markerSuffix = ".owner"

// Session tracks one in-progress chunked upload. All mutation happens under
// mu, which serializes chunk acceptance per uploadId.
type Session struct {
	UploadID      string
	Owner         string
	Slot          int
	MimeType      string
	Extension     string
	ExpectedIndex int
	BytesWritten  int64
	StagingPath   string
	MarkerPath    string
	StartedAt     time.Time
	LastActivity  time.Time

	// markerWritten records that the ownership sidecar reached disk.
	markerWritten bool
	// closed is set once the session has been finalized or reaped; a closed
	// session never accepts another write.
	closed bool

	mu sync.Mutex
}

// Cataloger is the write-behind index for finalized recordings.
type Cataloger interface {
	Upsert(ctx context.Context, recording *types.Recording) error
}

// Manager owns the live session map and the staging directory. Requests for
// different uploadIds proceed in parallel; requests for the same uploadId
// serialize on the session mutex.
type Manager struct {
	sessions map[string]*Session
	store    storage.Store
	catalog  Cataloger
	cfg      *config.UploadConfig
	layout   *config.StorageConfig
	now      func() time.Time

	mu sync.RWMutex
}

// NewManager creates a session manager over the given store and catalog
func NewManager(store storage.Store, catalog Cataloger, cfg *config.UploadConfig, layout *config.StorageConfig) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		catalog:  catalog,
		cfg:      cfg,
		layout:   layout,
		now:      time.Now,
	}
}

// ChunkRequest carries one validated-at-the-edge chunk submission
type ChunkRequest struct {
	UploadID string
	MimeType string
	Slot     int
	Index    int
	Owner    string
	Token    string
	Size     int64
	Data     io.Reader
}

func (m *Manager) stagingPath(uploadID, ext string) string {
	return path.Join(m.layout.StagingDir, uploadID+ext)
}

func (m *Manager) markerPath(uploadID string) string {
	return path.Join(m.layout.StagingDir, uploadID+markerSuffix)
}

func (m *Manager) validSlot(slot int) bool {
	return slot >= 1 && slot <= m.cfg.MaxSlots
}

// AppendChunk accepts one chunk for an upload, creating the session on the
// first chunk. It returns the next expected index. Counters advance only
// after the bytes have reached the staging file.
func (m *Manager) AppendChunk(ctx context.Context, req *ChunkRequest) (int, error) {
	if req.UploadID == "" {
		return 0, errValidation("uploadId is required")
	}
	if req.Index < 0 {
		return 0, errValidation("chunk index must be non-negative")
	}
	if !m.validSlot(req.Slot) {
		return 0, errValidation("slot %d out of range 1..%d", req.Slot, m.cfg.MaxSlots)
	}
	if req.Size > m.cfg.MaxChunkBytes {
		return 0, errQuota("chunk of %d bytes exceeds per-chunk limit of %d", req.Size, m.cfg.MaxChunkBytes)
	}

	sess := m.beginOrGet(req)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		// The session was finalized or reaped while this request was in
		// flight; a fresh request for the same uploadId starts over at 0.
		return 0, errConflict(0, "upload session %s is no longer active", req.UploadID)
	}
	if sess.Owner != req.Owner {
		return 0, errAuthorization("upload %s belongs to a different owner", req.UploadID)
	}
	if sess.Slot != req.Slot {
		return 0, errConflict(sess.ExpectedIndex, "slot %d does not match session slot %d", req.Slot, sess.Slot)
	}
	if req.Index != sess.ExpectedIndex {
		return 0, errConflict(sess.ExpectedIndex, "chunk index %d out of order, expected %d", req.Index, sess.ExpectedIndex)
	}
	if sess.BytesWritten+req.Size > m.cfg.MaxUploadBytes {
		return 0, errQuota("upload would exceed total limit of %d bytes", m.cfg.MaxUploadBytes)
	}

	// The ownership marker must be durable before any media bytes are. A
	// marker that already exists on disk is a retried creation and is fine.
	if !sess.markerWritten {
		hash := utils.HashToken(req.Token)
		if err := m.store.WriteExclusive(ctx, sess.MarkerPath, []byte(hash)); err != nil {
			return 0, errStorage(err, "failed to persist ownership marker for %s", req.UploadID)
		}
		sess.markerWritten = true
	}

	written, err := m.store.Append(ctx, sess.StagingPath, req.Data)
	if err != nil || written != req.Size {
		// Roll the staging file back to the last good length so the logical
		// counters and the on-disk length stay in agreement and the client
		// can retry this same chunk.
		if terr := m.store.Truncate(ctx, sess.StagingPath, sess.BytesWritten); terr != nil {
			log.Error().Err(terr).Str("upload_id", req.UploadID).Msg("failed to roll back partial append")
		}
		if err == nil {
			err = fmt.Errorf("short write: %d of %d bytes", written, req.Size)
		}
		return 0, errStorage(err, "failed to append chunk %d of upload %s", req.Index, req.UploadID)
	}

	sess.ExpectedIndex++
	sess.BytesWritten += written
	sess.LastActivity = m.now()

	log.Debug().
		Str("upload_id", req.UploadID).
		Int("index", req.Index).
		Int64("chunk_size", written).
		Int64("total_size", sess.BytesWritten).
		Msg("chunk appended to upload session")

	return sess.ExpectedIndex, nil
}

// beginOrGet returns the live session for an uploadId, creating it from the
// request if none exists. Creation is idempotent: the first chunk wins and
// later "first chunks" see the existing state.
func (m *Manager) beginOrGet(req *ChunkRequest) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, exists := m.sessions[req.UploadID]; exists {
		return sess
	}

	ext := extensionForMime(req.MimeType)
	now := m.now()
	sess := &Session{
		UploadID:     req.UploadID,
		Owner:        req.Owner,
		Slot:         req.Slot,
		MimeType:     req.MimeType,
		Extension:    ext,
		StagingPath:  m.stagingPath(req.UploadID, ext),
		MarkerPath:   m.markerPath(req.UploadID),
		StartedAt:    now,
		LastActivity: now,
	}
	m.sessions[req.UploadID] = sess

	log.Info().
		Str("upload_id", req.UploadID).
		Str("owner", req.Owner).
		Int("slot", req.Slot).
		Str("extension", ext).
		Msg("started upload session")

	return sess
}

// getSession returns the live session for an uploadId, if any
func (m *Manager) getSession(uploadID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, exists := m.sessions[uploadID]
	return sess, exists
}

// removeSession drops a session from the live map if it is still the mapped
// entry for its uploadId.
func (m *Manager) removeSession(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.sessions[sess.UploadID]; exists && current == sess {
		delete(m.sessions, sess.UploadID)
	}
}

// SessionCount reports the number of live sessions
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}
