package processing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/decaymeter/internal/acoustics"
	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/internal/repository"
	"github.com/RMahshie/decaymeter/internal/storage"
	"github.com/RMahshie/decaymeter/pkg/models"
)

type ProcessingService interface {
	ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error
}

// Analyzer is the part of acoustics.Analyzer the service needs
type Analyzer interface {
	AnalyzeBytes(ctx context.Context, name string, data []byte) (*models.AnalysisResult, error)
}

type processingService struct {
	store         storage.Store
	repository    repository.AnalysisRepository
	analyzer      Analyzer
	decodeTimeout time.Duration
}

func NewProcessingService(store storage.Store, repo repository.AnalysisRepository, analyzer Analyzer, decodeTimeout time.Duration) ProcessingService {
	return &processingService{
		store:         store,
		repository:    repo,
		analyzer:      analyzer,
		decodeTimeout: decodeTimeout,
	}
}

// User-facing failure messages
const (
	msgDownloadFailed    = "Failed to download audio"
	msgUnsupportedFormat = "Unsupported audio format. Upload WAV, AIFF, MP3 or Ogg Vorbis."
	msgDecodeFailed      = "The audio file could not be decoded"
	msgEmptyAudio        = "The audio file contains no samples"
	msgTimeout           = "Audio analysis timed out"
)

// failureMessage maps pipeline errors that are the upload's fault to a
// message. It returns "" for errors the caller should propagate.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, decoder.ErrUnsupportedFormat):
		return msgUnsupportedFormat
	case errors.Is(err, decoder.ErrEmptyAudio), errors.Is(err, acoustics.ErrEmptySignal):
		return msgEmptyAudio
	case errors.Is(err, decoder.ErrDecode):
		return msgDecodeFailed
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}
	return ""
}

func (s *processingService) ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	logger := log.With().Str("analysisID", analysisID.String()).Logger()

	// Step 1: Update to processing status
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 10); err != nil {
		return err
	}

	// Step 2: Get analysis details
	analysis, err := s.repository.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}
	if analysis.AudioS3Key == nil || *analysis.AudioS3Key == "" {
		return s.fail(ctx, analysisID, "No audio has been uploaded for this analysis")
	}
	key := *analysis.AudioS3Key

	// Step 3: Download the recording
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 20); err != nil {
		return err
	}
	audioData, err := s.store.DownloadFile(ctx, key)
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Failed to download audio")
		return s.fail(ctx, analysisID, msgDownloadFailed)
	}

	// Step 4: Run the acoustic analysis
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 50); err != nil {
		return err
	}
	analyzeCtx := ctx
	if s.decodeTimeout > 0 {
		var cancel context.CancelFunc
		analyzeCtx, cancel = context.WithTimeout(ctx, s.decodeTimeout)
		defer cancel()
	}
	started := time.Now()
	result, err := s.analyzer.AnalyzeBytes(analyzeCtx, path.Base(key), audioData)
	if err != nil {
		if msg := failureMessage(err); msg != "" {
			logger.Warn().Err(err).Msg("Audio analysis rejected")
			return s.fail(ctx, analysisID, msg)
		}
		return fmt.Errorf("audio analysis failed: %w", err)
	}
	logger.Info().
		Dur("elapsed", time.Since(started)).
		Float64("durationSec", result.Clip.Duration()).
		Float64("resonanceHz", result.Resonance.FrequencyHz).
		Msg("Audio analyzed")

	// Step 5: Room modes from room info when available
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 80); err != nil {
		return err
	}
	var modes []float64
	roomInfo, err := s.repository.GetRoomInfo(ctx, analysisID)
	hasRoom := err == nil
	switch {
	case err == nil:
		modes = RoomModes(roomInfo)
	case errors.Is(err, repository.ErrNotFound):
	default:
		return err
	}

	// Step 6: Store results
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusProcessing, 90); err != nil {
		return err
	}
	if err := s.repository.StoreResults(ctx, BuildResults(analysis.ID, result, modes)); err != nil {
		return err
	}

	// Step 7: Mark complete
	if err := s.repository.UpdateStatus(ctx, analysisID, models.StatusCompleted, 100); err != nil {
		return err
	}
	if !hasRoom {
		s.attachLateRoomModes(ctx, analysisID, logger)
	}
	return nil
}

// attachLateRoomModes covers room info saved between step 5 and completion.
// AddRoomInfo re-reads the status after its insert, so one of the two sides
// always sees the other.
func (s *processingService) attachLateRoomModes(ctx context.Context, analysisID uuid.UUID, logger zerolog.Logger) {
	roomInfo, err := s.repository.GetRoomInfo(ctx, analysisID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn().Err(err).Msg("Failed to re-check room info")
		}
		return
	}
	if err := s.repository.UpdateRoomModes(ctx, analysisID, RoomModes(roomInfo)); err != nil {
		logger.Warn().Err(err).Msg("Failed to attach room modes")
	}
}

// fail records msg on the analysis. The analysis is then finished from the
// caller's point of view, so only a failure to record it is returned.
func (s *processingService) fail(ctx context.Context, analysisID uuid.UUID, msg string) error {
	if err := s.repository.UpdateError(context.WithoutCancel(ctx), analysisID, msg); err != nil {
		return fmt.Errorf("failed to record analysis error: %w", err)
	}
	return nil
}

// BuildResults converts a pipeline result into the stored form. The summary
// RT60 is the Mid band value when it is valid.
func BuildResults(analysisID string, r *models.AnalysisResult, modes []float64) *models.AnalysisResults {
	report := models.NewAnalysisReport(r)

	results := &models.AnalysisResults{
		ID:            uuid.New().String(),
		AnalysisID:    analysisID,
		DurationSec:   report.DurationSec,
		SampleRate:    report.SampleRate,
		Bands:         report.Bands,
		Resonance:     report.Resonance,
		FrequencyData: report.FrequencyData,
		RoomModes:     modes,
		CreatedAt:     time.Now().UTC(),
	}
	for _, b := range report.Bands {
		if b.Band == models.BandMid && b.Seconds != nil {
			rt60 := *b.Seconds
			results.RT60 = &rt60
		}
	}
	return results
}

// RoomModes predicts the axial modes of the room described by info
func RoomModes(info *models.RoomInfo) []float64 {
	if info == nil {
		return nil
	}
	return acoustics.AxialModes(acoustics.RoomDimensions{
		LengthM: info.RoomLength,
		WidthM:  info.RoomWidth,
		HeightM: info.RoomHeight,
	}, acoustics.DefaultModeLimitHz)
}
