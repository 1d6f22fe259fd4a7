package types

import (
	"time"
)

// Recording is the catalog row for a finalized upload. Rows are written once by
// the finalizer (upsert-by-id) and never mutated by the upload core afterwards.
type Recording struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	URL        string    `json:"url" gorm:"not null"`
	MimeType   string    `json:"mime_type"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandshakeRequest is the body of a token issuance request
type HandshakeRequest struct {
	// DisplayName is optional; when empty an identity label is generated.
	DisplayName string `json:"displayName"`
}

// HandshakeResponse carries a freshly issued capability token
type HandshakeResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ChunkResponse acknowledges one accepted chunk
type ChunkResponse struct {
	OK        bool `json:"ok"`
	NextIndex int  `json:"nextIndex"`
}

// FinishResponse carries the finalized artifact's identity and location
type FinishResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// APIResponse is the generic error envelope
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Expected is set on ordering conflicts so a client can resynchronize.
	Expected *int `json:"expected,omitempty"`
}
