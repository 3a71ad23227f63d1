package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/RMahshie/decaymeter/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique record already exists
	ErrConflict = errors.New("record already exists")
)

// AnalysisRepository defines the interface for analysis data operations
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *models.Analysis) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	GetBySessionID(ctx context.Context, sessionID string) ([]*models.Analysis, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, progress int) error
	// ClaimForProcessing moves a pending or failed analysis to processing.
	// It returns ErrConflict when another caller already holds it.
	ClaimForProcessing(ctx context.Context, id uuid.UUID) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	StoreResults(ctx context.Context, results *models.AnalysisResults) error
	GetResults(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResults, error)
	UpdateRoomModes(ctx context.Context, analysisID uuid.UUID, modes []float64) error
	RoomInfoRepository
}

// RoomInfoRepository defines the interface for room information operations
type RoomInfoRepository interface {
	CreateRoomInfo(ctx context.Context, info *models.RoomInfo) error
	GetRoomInfo(ctx context.Context, analysisID uuid.UUID) (*models.RoomInfo, error)
}
