package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/RMahshie/decaymeter/internal/repository"
	"github.com/RMahshie/decaymeter/pkg/models"
)

//go:embed schema.sql
var schema string

// pq error code for unique_violation
const uniqueViolation = "23505"

// Migrate creates the tables when they do not exist yet
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PostgresAnalysisRepository implements AnalysisRepository for PostgreSQL
type PostgresAnalysisRepository struct {
	db *sql.DB
}

// NewPostgresAnalysisRepository creates a new PostgreSQL analysis repository
func NewPostgresAnalysisRepository(db *sql.DB) repository.AnalysisRepository {
	return &PostgresAnalysisRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

func conflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrConflict, pqErr.Constraint)
	}
	return err
}

// Create inserts a new analysis record
func (r *PostgresAnalysisRepository) Create(ctx context.Context, analysis *models.Analysis) error {
	query := `
		INSERT INTO analyses (id, session_id, signal_id, status, progress, audio_s3_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var signalID sql.NullString
	if analysis.SignalID != "" {
		signalID = sql.NullString{String: analysis.SignalID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		analysis.ID,
		analysis.SessionID,
		signalID,
		analysis.Status,
		analysis.Progress,
		analysis.AudioS3Key,
		analysis.CreatedAt,
		analysis.UpdatedAt)

	return conflict(err)
}

const analysisColumns = `id, session_id, signal_id, status, progress, audio_s3_key, error_message, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var analysis models.Analysis
	var signalID, audioS3Key, errorMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&analysis.ID,
		&analysis.SessionID,
		&signalID,
		&analysis.Status,
		&analysis.Progress,
		&audioS3Key,
		&errorMsg,
		&analysis.CreatedAt,
		&analysis.UpdatedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}

	analysis.SignalID = signalID.String
	if audioS3Key.Valid {
		analysis.AudioS3Key = &audioS3Key.String
	}
	if errorMsg.Valid {
		analysis.ErrorMsg = &errorMsg.String
	}
	if completedAt.Valid {
		analysis.CompletedAt = &completedAt.Time
	}

	return &analysis, nil
}

// GetByID retrieves an analysis by ID
func (r *PostgresAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1`

	analysis, err := scanAnalysis(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return analysis, nil
}

// GetBySessionID retrieves analyses by session ID, newest first
func (r *PostgresAnalysisRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE session_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}

	return analyses, rows.Err()
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates the status and progress of an analysis
func (r *PostgresAnalysisRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, progress int) error {
	query := `
		UPDATE analyses
		SET status = $1::text, progress = $2, updated_at = NOW(),
		    completed_at = CASE WHEN $1::text = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $3`

	return expectOne(r.db.ExecContext(ctx, query, status, progress, id))
}

// ClaimForProcessing atomically moves a pending or failed analysis to
// processing so only one worker runs it.
func (r *PostgresAnalysisRepository) ClaimForProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE analyses
		SET status = 'processing', progress = 0, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')`

	err := expectOne(r.db.ExecContext(ctx, query, id))
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM analyses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: analysis is already processing or completed", repository.ErrConflict)
	}
	return repository.ErrNotFound
}

// UpdateError marks an analysis failed with errorMsg
func (r *PostgresAnalysisRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE analyses
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2`

	return expectOne(r.db.ExecContext(ctx, query, errorMsg, id))
}

// StoreResults stores analysis results
func (r *PostgresAnalysisRepository) StoreResults(ctx context.Context, results *models.AnalysisResults) error {
	bands, err := json.Marshal(results.Bands)
	if err != nil {
		return fmt.Errorf("failed to marshal bands: %w", err)
	}

	freqData, err := json.Marshal(results.FrequencyData)
	if err != nil {
		return fmt.Errorf("failed to marshal frequency data: %w", err)
	}

	var roomModes sql.NullString
	if results.RoomModes != nil {
		b, err := json.Marshal(results.RoomModes)
		if err != nil {
			return fmt.Errorf("failed to marshal room modes: %w", err)
		}
		roomModes = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO analysis_results
			(id, analysis_id, duration_sec, sample_rate, rt60, bands, resonance_hz, resonance_mag, frequency_data, room_modes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		results.ID,
		results.AnalysisID,
		results.DurationSec,
		results.SampleRate,
		results.RT60,
		string(bands),
		results.Resonance.FrequencyHz,
		results.Resonance.Magnitude,
		string(freqData),
		roomModes,
		results.CreatedAt)

	return conflict(err)
}

// GetResults retrieves analysis results
func (r *PostgresAnalysisRepository) GetResults(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResults, error) {
	query := `
		SELECT id, analysis_id, duration_sec, sample_rate, rt60, bands, resonance_hz, resonance_mag, frequency_data, room_modes, created_at
		FROM analysis_results
		WHERE analysis_id = $1`

	var results models.AnalysisResults
	var rt60 sql.NullFloat64
	var bands, freqData []byte
	var roomModes sql.NullString

	err := r.db.QueryRowContext(ctx, query, analysisID).Scan(
		&results.ID,
		&results.AnalysisID,
		&results.DurationSec,
		&results.SampleRate,
		&rt60,
		&bands,
		&results.Resonance.FrequencyHz,
		&results.Resonance.Magnitude,
		&freqData,
		&roomModes,
		&results.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	if rt60.Valid {
		results.RT60 = &rt60.Float64
	}
	if err := json.Unmarshal(bands, &results.Bands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bands: %w", err)
	}
	if err := json.Unmarshal(freqData, &results.FrequencyData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frequency data: %w", err)
	}
	if roomModes.Valid {
		if err := json.Unmarshal([]byte(roomModes.String), &results.RoomModes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room modes: %w", err)
		}
	}

	return &results, nil
}

// UpdateRoomModes replaces the room modes of stored results
func (r *PostgresAnalysisRepository) UpdateRoomModes(ctx context.Context, analysisID uuid.UUID, modes []float64) error {
	b, err := json.Marshal(modes)
	if err != nil {
		return fmt.Errorf("failed to marshal room modes: %w", err)
	}

	query := `UPDATE analysis_results SET room_modes = $1 WHERE analysis_id = $2`
	return expectOne(r.db.ExecContext(ctx, query, string(b), analysisID))
}

// CreateRoomInfo inserts room information
func (r *PostgresAnalysisRepository) CreateRoomInfo(ctx context.Context, info *models.RoomInfo) error {
	query := `
		INSERT INTO room_info (id, analysis_id, room_length, room_width, room_height, floor_type, additional_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		info.ID,
		info.AnalysisID,
		info.RoomLength,
		info.RoomWidth,
		info.RoomHeight,
		info.FloorType,
		info.AdditionalNotes,
		info.CreatedAt)

	return conflict(err)
}

// GetRoomInfo retrieves room information by analysis ID
func (r *PostgresAnalysisRepository) GetRoomInfo(ctx context.Context, analysisID uuid.UUID) (*models.RoomInfo, error) {
	query := `
		SELECT id, analysis_id, room_length, room_width, room_height, floor_type, additional_notes, created_at
		FROM room_info
		WHERE analysis_id = $1`

	var info models.RoomInfo
	var floorType, notes sql.NullString

	err := r.db.QueryRowContext(ctx, query, analysisID).Scan(
		&info.ID,
		&info.AnalysisID,
		&info.RoomLength,
		&info.RoomWidth,
		&info.RoomHeight,
		&floorType,
		&notes,
		&info.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	info.FloorType = floorType.String
	info.AdditionalNotes = notes.String
	return &info, nil
}
