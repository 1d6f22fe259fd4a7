package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/cmd/server/middleware"
	"github.com/tkarren/castbucket/internal/upload"
	"github.com/tkarren/castbucket/pkg/types"
)

// tokenIssuer is the slice of the auth service the handshake handler needs
type tokenIssuer interface {
	Handshake(ctx context.Context, displayName string) (*types.HandshakeResponse, error)
}

// recordingLister is the slice of the catalog the listing handler needs
type recordingLister interface {
	List(ctx context.Context) ([]types.Recording, error)
}

func handleHandshake(issuer tokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.HandshakeRequest
		// An empty body is fine; the display name is optional.
		_ = c.ShouldBindJSON(&req)

		resp, err := issuer.Handshake(c.Request.Context(), req.DisplayName)
		if err != nil {
			log.Error().Err(err).Msg("handshake failed")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to issue token",
			})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func handleChunkUpload(manager *upload.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, token, ok := middleware.IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusForbidden, types.APIResponse{Success: false, Error: "not authenticated"})
			return
		}

		index, err := strconv.Atoi(c.PostForm("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "index must be an integer"})
			return
		}
		slot, err := strconv.Atoi(c.PostForm("slot"))
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "slot must be an integer"})
			return
		}

		file, header, err := c.Request.FormFile("chunk")
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "missing chunk file field"})
			return
		}
		defer file.Close()

		next, err := manager.AppendChunk(c.Request.Context(), &upload.ChunkRequest{
			UploadID: c.PostForm("uploadId"),
			MimeType: c.PostForm("mimeType"),
			Slot:     slot,
			Index:    index,
			Owner:    identity,
			Token:    token,
			Size:     header.Size,
			Data:     file,
		})
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.ChunkResponse{OK: true, NextIndex: next})
	}
}

// finishForm is the wire shape of a finish request, accepted as JSON or form
type finishForm struct {
	UploadID   string `json:"uploadId" form:"uploadId"`
	Slot       int    `json:"slot" form:"slot"`
	DurationMs int64  `json:"durationMs" form:"durationMs"`
}

func handleFinishUpload(manager *upload.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, token, ok := middleware.IdentityFromContext(c)
		if !ok {
			c.JSON(http.StatusForbidden, types.APIResponse{Success: false, Error: "not authenticated"})
			return
		}

		var form finishForm
		if err := c.ShouldBind(&form); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "malformed finish request"})
			return
		}
		if form.UploadID == "" {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "uploadId is required"})
			return
		}

		result, err := manager.Finish(c.Request.Context(), &upload.FinishRequest{
			UploadID:   form.UploadID,
			Slot:       form.Slot,
			DurationMs: form.DurationMs,
			Owner:      identity,
			Token:      token,
		})
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.FinishResponse{ID: result.ID, URL: result.URL})
	}
}

func handleListRecordings(lister recordingLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		recordings, err := lister.List(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to list recordings")
			c.JSON(http.StatusInternalServerError, types.APIResponse{
				Success: false,
				Error:   "failed to list recordings",
			})
			return
		}

		c.JSON(http.StatusOK, recordings)
	}
}

// writeUploadError maps the upload core's error taxonomy onto HTTP statuses.
// Ordering conflicts carry the expected index so the client can resynchronize.
func writeUploadError(c *gin.Context, err error) {
	ue, ok := upload.AsError(err)
	if !ok {
		log.Error().Err(err).Msg("unexpected upload error")
		c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
		return
	}

	resp := types.APIResponse{Success: false, Error: ue.Message}
	var status int
	switch ue.Kind {
	case upload.KindAuthorization:
		status = http.StatusForbidden
	case upload.KindValidation:
		status = http.StatusBadRequest
	case upload.KindConflict:
		status = http.StatusConflict
		expected := ue.Expected
		resp.Expected = &expected
	case upload.KindQuota:
		status = http.StatusRequestEntityTooLarge
	case upload.KindNotFound:
		status = http.StatusNotFound
	case upload.KindStorage:
		log.Error().Err(err).Msg("storage failure")
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, resp)
}
