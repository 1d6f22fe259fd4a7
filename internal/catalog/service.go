package catalog

import (
	"context"
	"fmt"

	"github.com/tkarren/castbucket/internal/common"
	"github.com/tkarren/castbucket/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service maintains the catalog of finalized recordings
type Service struct {
	db *common.Database
}

// NewService creates a new catalog service
func NewService(db *common.Database) *Service {
	return &Service{db: db}
}

// Upsert writes a recording row, replacing any previous row with the same id
func (s *Service) Upsert(ctx context.Context, recording *types.Recording) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(recording).Error
	if err != nil {
		return fmt.Errorf("failed to upsert recording %s: %w", recording.ID, err)
	}
	return nil
}

// Get returns a recording by id
func (s *Service) Get(ctx context.Context, id string) (*types.Recording, error) {
	var recording types.Recording
	if err := s.db.WithContext(ctx).First(&recording, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("recording not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return &recording, nil
}

// List returns all recordings, newest first
func (s *Service) List(ctx context.Context) ([]types.Recording, error) {
	var recordings []types.Recording
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&recordings).Error; err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return recordings, nil
}
