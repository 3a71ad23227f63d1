package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/decaymeter/internal/acoustics"
	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/internal/processing"
	"github.com/RMahshie/decaymeter/internal/repository"
	"github.com/RMahshie/decaymeter/internal/storage"
	"github.com/RMahshie/decaymeter/pkg/models"
)

// uploadURLExpiry is how long a pre-signed upload URL stays valid
const uploadURLExpiry = 15 * time.Minute

// AnalysisHandler handles analysis-related HTTP requests
type AnalysisHandler struct {
	repo          repository.AnalysisRepository
	store         storage.Store
	processingSvc processing.ProcessingService
	analyzer      processing.Analyzer
	timeout       time.Duration
}

// NewAnalysisHandler creates a new analysis handler. timeout bounds both
// background processing and synchronous analysis; zero disables it.
func NewAnalysisHandler(repo repository.AnalysisRepository, store storage.Store, processingSvc processing.ProcessingService, analyzer processing.Analyzer, timeout time.Duration) *AnalysisHandler {
	return &AnalysisHandler{
		repo:          repo,
		store:         store,
		processingSvc: processingSvc,
		analyzer:      analyzer,
		timeout:       timeout,
	}
}

func (h *AnalysisHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

// lookup parses id and loads the analysis it names
func (h *AnalysisHandler) lookup(ctx context.Context, id string) (*models.Analysis, uuid.UUID, error) {
	analysisID, err := uuid.Parse(id)
	if err != nil {
		return nil, uuid.Nil, huma.Error400BadRequest("Invalid analysis ID", err)
	}

	analysis, err := h.repo.GetByID(ctx, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, analysisID, huma.Error404NotFound("Analysis not found", err)
		}
		return nil, analysisID, huma.Error500InternalServerError("Failed to load analysis", err)
	}
	return analysis, analysisID, nil
}

func checkUploadSize(size int64) error {
	if size < models.MinUploadSize {
		return huma.Error400BadRequest("Recording too short. Please ensure microphone is working.", nil)
	}
	if size > models.MaxUploadSize {
		return huma.Error400BadRequest("Recording too large. Please try a shorter recording.", nil)
	}
	return nil
}

// analysisError converts a pipeline error into an HTTP error
func analysisError(err error) error {
	switch {
	case errors.Is(err, decoder.ErrUnsupportedFormat):
		return huma.NewError(http.StatusUnsupportedMediaType, "Unsupported audio format. Upload WAV, AIFF, MP3 or Ogg Vorbis.", err)
	case errors.Is(err, decoder.ErrEmptyAudio), errors.Is(err, acoustics.ErrEmptySignal):
		return huma.Error422UnprocessableEntity("The recording contains no usable audio", err)
	case errors.Is(err, decoder.ErrDecode):
		return huma.Error422UnprocessableEntity("The recording could not be decoded", err)
	case errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(http.StatusGatewayTimeout, "Audio analysis timed out", err)
	}
	return huma.Error500InternalServerError("Audio analysis failed", err)
}

// Analyze decodes and analyzes the request body without storing anything
func (h *AnalysisHandler) Analyze(ctx context.Context, req *models.AnalyzeUploadRequest) (*models.AnalyzeUploadResponse, error) {
	size := len(req.RawBody)
	log.Info().Int("size", size).Str("filename", req.Filename).Msg("Synchronous analysis request received")

	if size == 0 {
		return nil, huma.Error400BadRequest("Request body is empty", nil)
	}
	if size > models.MaxUploadSize {
		return nil, huma.Error400BadRequest("Recording too large. Please try a shorter recording.", nil)
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	result, err := h.analyzer.AnalyzeBytes(ctx, req.Filename, req.RawBody)
	if err != nil {
		log.Warn().Err(err).Str("filename", req.Filename).Msg("Synchronous analysis failed")
		return nil, analysisError(err)
	}

	report := models.NewAnalysisReport(result)
	log.Info().
		Float64("durationSec", report.DurationSec).
		Float64("resonanceHz", report.Resonance.FrequencyHz).
		Msg("Synchronous analysis complete")
	return &models.AnalyzeUploadResponse{Body: report}, nil
}

// CreateAnalysis creates a new analysis and returns an upload URL
func (h *AnalysisHandler) CreateAnalysis(ctx context.Context, req *models.CreateAnalysisRequest) (*models.CreateAnalysisResponse, error) {
	log.Info().Int64("fileSize", req.Body.FileSize).Str("signalID", req.Body.SignalID).Msg("Creating new analysis")

	if err := checkUploadSize(req.Body.FileSize); err != nil {
		return nil, err
	}

	analysisID := uuid.New()
	audioKey := storage.AudioKey(analysisID.String(), req.Body.MimeType)

	log.Info().Str("audioKey", audioKey).Str("mimeType", req.Body.MimeType).Msg("Generating upload URL")
	uploadURL, err := h.store.GenerateUploadURL(ctx, audioKey, req.Body.MimeType)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrPresignUnsupported):
		// the client uploads through the API instead
		uploadURL = fmt.Sprintf("/api/analyses/%s/audio", analysisID)
	case strings.Contains(err.Error(), "invalid content type"):
		return nil, huma.Error400BadRequest("Recording format not supported. Please try again.", err)
	default:
		return nil, huma.Error400BadRequest("Failed to prepare upload. Please try again.", err)
	}

	now := time.Now()
	analysis := &models.Analysis{
		ID:         analysisID.String(),
		SessionID:  req.Body.SessionID,
		SignalID:   req.Body.SignalID,
		Status:     models.StatusPending,
		Progress:   0,
		AudioS3Key: &audioKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.repo.Create(ctx, analysis); err != nil {
		return nil, huma.Error500InternalServerError("Failed to create analysis", err)
	}
	log.Info().Str("analysisID", analysis.ID).Str("sessionID", analysis.SessionID).Msg("Analysis created")

	return &models.CreateAnalysisResponse{
		Body: models.CreateAnalysisResponseBody{
			ID:        analysis.ID,
			UploadURL: uploadURL,
			ExpiresIn: int(uploadURLExpiry.Seconds()),
		},
	}, nil
}

// UploadAudio stores the recording of a pending analysis
func (h *AnalysisHandler) UploadAudio(ctx context.Context, req *models.UploadAudioRequest) (*models.UploadAudioResponse, error) {
	analysis, _, err := h.lookup(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if analysis.Status != models.StatusPending {
		return nil, huma.Error409Conflict("Audio can only be uploaded before processing starts",
			fmt.Errorf("analysis status is %s", analysis.Status))
	}
	if analysis.AudioS3Key == nil {
		return nil, huma.Error409Conflict("Analysis has no audio location", nil)
	}
	if err := checkUploadSize(int64(len(req.RawBody))); err != nil {
		return nil, err
	}

	if err := h.store.UploadFile(ctx, *analysis.AudioS3Key, req.ContentType, req.RawBody); err != nil {
		if strings.Contains(err.Error(), "invalid content type") {
			return nil, huma.NewError(http.StatusUnsupportedMediaType, "Recording format not supported. Please try again.", err)
		}
		return nil, huma.Error500InternalServerError("Failed to store recording", err)
	}
	log.Info().Str("analysisID", analysis.ID).Int("size", len(req.RawBody)).Msg("Audio uploaded")

	return &models.UploadAudioResponse{
		Body: models.UploadAudioResponseBody{
			Message: "Audio uploaded successfully",
			Size:    len(req.RawBody),
		},
	}, nil
}

// GetAnalysisStatus returns the current status of an analysis
func (h *AnalysisHandler) GetAnalysisStatus(ctx context.Context, req *models.GetAnalysisStatusRequest) (*models.GetAnalysisStatusResponse, error) {
	analysis, analysisID, err := h.lookup(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	var resultsID *string
	if analysis.Status == models.StatusCompleted {
		results, err := h.repo.GetResults(ctx, analysisID)
		if err == nil && results != nil {
			resultsID = &results.ID
		}
	}

	return &models.GetAnalysisStatusResponse{
		Body: models.GetAnalysisStatusResponseBody{
			ID:        analysis.ID,
			Status:    analysis.Status,
			Progress:  analysis.Progress,
			Message:   generateStatusMessage(analysis.Status, analysis.Progress),
			Error:     analysis.ErrorMsg,
			ResultsID: resultsID,
		},
	}, nil
}

// GetAnalysisResults returns the analysis results
func (h *AnalysisHandler) GetAnalysisResults(ctx context.Context, req *models.GetAnalysisResultsRequest) (*models.GetAnalysisResultsResponse, error) {
	analysis, analysisID, err := h.lookup(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if analysis.Status != models.StatusCompleted {
		return nil, huma.Error409Conflict("Analysis not yet completed",
			fmt.Errorf("analysis status is %s", analysis.Status))
	}

	results, err := h.repo.GetResults(ctx, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, huma.Error404NotFound("Results not found", err)
		}
		return nil, huma.Error500InternalServerError("Failed to get results", err)
	}

	roomInfo, err := h.repo.GetRoomInfo(ctx, analysisID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn().Err(err).Str("analysisID", analysis.ID).Msg("Failed to load room info")
		}
		roomInfo = nil
	}

	return &models.GetAnalysisResultsResponse{
		Body: models.GetAnalysisResultsResponseBody{
			ID:            results.ID,
			AnalysisID:    results.AnalysisID,
			DurationSec:   results.DurationSec,
			SampleRate:    results.SampleRate,
			RT60:          results.RT60,
			Bands:         results.Bands,
			Resonance:     results.Resonance,
			FrequencyData: results.FrequencyData,
			RoomModes:     results.RoomModes,
			RoomInfo:      roomInfo,
			CreatedAt:     results.CreatedAt,
		},
	}, nil
}

// StartProcessing starts processing an uploaded file
func (h *AnalysisHandler) StartProcessing(ctx context.Context, req *models.StartProcessingRequest) (*models.StartProcessingResponse, error) {
	analysis, analysisID, err := h.lookup(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	// the claim is a conditional update, so concurrent starts run one worker
	if err := h.repo.ClaimForProcessing(ctx, analysisID); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, huma.Error409Conflict("Analysis has already been processed", err)
		case errors.Is(err, repository.ErrNotFound):
			return nil, huma.Error404NotFound("Analysis not found", err)
		}
		return nil, huma.Error500InternalServerError("Failed to start processing", err)
	}

	log.Info().Str("analysisID", analysis.ID).Msg("Starting background processing")
	go h.process(analysisID)

	resp := &models.StartProcessingResponse{}
	resp.Body.Message = "Processing started successfully"
	return resp, nil
}

// process runs detached from the request that started it
func (h *AnalysisHandler) process(analysisID uuid.UUID) {
	ctx, cancel := h.withTimeout(context.Background())
	defer cancel()

	if err := h.processingSvc.ProcessAnalysis(ctx, analysisID); err != nil {
		log.Error().Err(err).Str("analysisID", analysisID.String()).Msg("Processing failed")
		msg := "Processing failed. Please try again."
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "Processing timed out. Please try again."
		}
		if err := h.repo.UpdateError(context.Background(), analysisID, msg); err != nil {
			log.Error().Err(err).Str("analysisID", analysisID.String()).Msg("Failed to record processing error")
		}
	}
}

// AddRoomInfo adds room information to an analysis
func (h *AnalysisHandler) AddRoomInfo(ctx context.Context, req *models.AddRoomInfoRequest) (*models.AddRoomInfoResponse, error) {
	analysis, analysisID, err := h.lookup(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	roomInfo := &models.RoomInfo{
		ID:              uuid.New().String(),
		AnalysisID:      analysis.ID,
		RoomLength:      req.Body.RoomLength,
		RoomWidth:       req.Body.RoomWidth,
		RoomHeight:      req.Body.RoomHeight,
		FloorType:       req.Body.FloorType,
		AdditionalNotes: req.Body.AdditionalNotes,
		CreatedAt:       time.Now(),
	}

	if err := h.repo.CreateRoomInfo(ctx, roomInfo); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, huma.Error409Conflict("Room info already added for this analysis", err)
		}
		return nil, huma.Error500InternalServerError("Failed to save room info", err)
	}

	// Status is read again after the insert. A worker that finishes first is
	// seen here; one that finishes later finds the new row itself.
	current, err := h.repo.GetByID(ctx, analysisID)
	if err != nil {
		log.Warn().Err(err).Str("analysisID", analysis.ID).Msg("Failed to re-read analysis status")
	} else if current.Status == models.StatusCompleted {
		modes := processing.RoomModes(roomInfo)
		if err := h.repo.UpdateRoomModes(ctx, analysisID, modes); err != nil {
			log.Warn().Err(err).Str("analysisID", analysis.ID).Msg("Failed to update room modes")
		}
	}

	return &models.AddRoomInfoResponse{
		Body: roomInfo,
	}, nil
}

// ListSessionAnalyses returns the analyses of a session, newest first
func (h *AnalysisHandler) ListSessionAnalyses(ctx context.Context, req *models.ListSessionAnalysesRequest) (*models.ListSessionAnalysesResponse, error) {
	analyses, err := h.repo.GetBySessionID(ctx, req.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list analyses", err)
	}
	if analyses == nil {
		analyses = []*models.Analysis{}
	}

	resp := &models.ListSessionAnalysesResponse{}
	resp.Body.Analyses = analyses
	return resp, nil
}

// generateStatusMessage creates a human-readable status message
func generateStatusMessage(status string, progress int) string {
	switch status {
	case models.StatusPending:
		return "Analysis queued for processing..."
	case models.StatusProcessing:
		if progress < 20 {
			return "Starting analysis..."
		} else if progress < 50 {
			return "Downloading audio file..."
		} else if progress < 80 {
			return "Measuring reverberation..."
		} else {
			return "Finalizing results..."
		}
	case models.StatusCompleted:
		return "Analysis complete!"
	case models.StatusFailed:
		return "Analysis failed. Please try again."
	default:
		return "Unknown status"
	}
}
