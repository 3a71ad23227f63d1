package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/decaymeter/internal/acoustics"
	"github.com/RMahshie/decaymeter/internal/audiotest"
	"github.com/RMahshie/decaymeter/internal/decoder"
	"github.com/RMahshie/decaymeter/internal/repository"
	"github.com/RMahshie/decaymeter/internal/storage"
	"github.com/RMahshie/decaymeter/pkg/models"
)

// MockAnalysisRepository implements repository.AnalysisRepository for testing
type MockAnalysisRepository struct {
	mock.Mock
}

func (m *MockAnalysisRepository) Create(ctx context.Context, analysis *models.Analysis) error {
	args := m.Called(ctx, analysis)
	return args.Error(0)
}

func (m *MockAnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*models.Analysis)
	return a, args.Error(1)
}

func (m *MockAnalysisRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.Analysis, error) {
	args := m.Called(ctx, sessionID)
	list, _ := args.Get(0).([]*models.Analysis)
	return list, args.Error(1)
}

func (m *MockAnalysisRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, progress int) error {
	args := m.Called(ctx, id, status, progress)
	return args.Error(0)
}

func (m *MockAnalysisRepository) ClaimForProcessing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAnalysisRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	args := m.Called(ctx, id, errorMsg)
	return args.Error(0)
}

func (m *MockAnalysisRepository) StoreResults(ctx context.Context, results *models.AnalysisResults) error {
	args := m.Called(ctx, results)
	return args.Error(0)
}

func (m *MockAnalysisRepository) GetResults(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResults, error) {
	args := m.Called(ctx, analysisID)
	r, _ := args.Get(0).(*models.AnalysisResults)
	return r, args.Error(1)
}

func (m *MockAnalysisRepository) UpdateRoomModes(ctx context.Context, analysisID uuid.UUID, modes []float64) error {
	args := m.Called(ctx, analysisID, modes)
	return args.Error(0)
}

func (m *MockAnalysisRepository) CreateRoomInfo(ctx context.Context, info *models.RoomInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

func (m *MockAnalysisRepository) GetRoomInfo(ctx context.Context, analysisID uuid.UUID) (*models.RoomInfo, error) {
	args := m.Called(ctx, analysisID)
	info, _ := args.Get(0).(*models.RoomInfo)
	return info, args.Error(1)
}

// MockStore implements storage.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	args := m.Called(ctx, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) UploadFile(ctx context.Context, key string, contentType string, data []byte) error {
	args := m.Called(ctx, key, contentType, data)
	return args.Error(0)
}

func (m *MockStore) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockStore) DeleteFile(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockProcessingService implements processing.ProcessingService for testing
type MockProcessingService struct {
	mock.Mock
}

func (m *MockProcessingService) ProcessAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	args := m.Called(ctx, analysisID)
	return args.Error(0)
}

func newTestAnalyzer(t *testing.T) *acoustics.Analyzer {
	t.Helper()
	a, err := acoustics.NewAnalyzer(acoustics.DefaultConfig(), decoder.New(decoder.Options{}, zerolog.Nop()), nil, zerolog.Nop())
	require.NoError(t, err)
	return a
}

type testDeps struct {
	repo  *MockAnalysisRepository
	store *MockStore
	proc  *MockProcessingService
}

func newTestHandler(t *testing.T) (*AnalysisHandler, testDeps) {
	d := testDeps{
		repo:  &MockAnalysisRepository{},
		store: &MockStore{},
		proc:  &MockProcessingService{},
	}
	t.Cleanup(func() {
		d.repo.AssertExpectations(t)
		d.store.AssertExpectations(t)
		d.proc.AssertExpectations(t)
	})
	return NewAnalysisHandler(d.repo, d.store, d.proc, newTestAnalyzer(t), time.Minute), d
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func pendingAnalysis(id uuid.UUID) *models.Analysis {
	key := storage.AudioKey(id.String(), "audio/wav")
	return &models.Analysis{
		ID:         id.String(),
		SessionID:  "test-session-123",
		Status:     models.StatusPending,
		AudioS3Key: &key,
	}
}

func decayingToneWAV() []byte {
	return audiotest.MonoWAV16(44100, audiotest.DecayingSine(44100, 1000, 0.3, 2, 0.9))
}

func TestCreateAnalysis(t *testing.T) {
	tests := []struct {
		name       string
		fileSize   int64
		mimeType   string
		mockSetup  func(testDeps)
		wantStatus int
		wantURL    string
	}{
		{
			name:     "valid audio file",
			fileSize: 5242880,
			mimeType: "audio/wav",
			mockSetup: func(d testDeps) {
				d.store.On("GenerateUploadURL", mock.Anything, mock.MatchedBy(func(key string) bool {
					return strings.HasPrefix(key, "audio/") && strings.HasSuffix(key, ".wav")
				}), "audio/wav").Return("https://example.com/upload", nil)
				d.repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Analysis")).Return(nil)
			},
			wantURL: "https://example.com/upload",
		},
		{
			name:     "store without presigning",
			fileSize: 5000,
			mimeType: "audio/ogg",
			mockSetup: func(d testDeps) {
				d.store.On("GenerateUploadURL", mock.Anything, mock.Anything, "audio/ogg").Return("", storage.ErrPresignUnsupported)
				d.repo.On("Create", mock.Anything, mock.MatchedBy(func(a *models.Analysis) bool {
					return a.Status == models.StatusPending && strings.HasSuffix(*a.AudioS3Key, ".ogg")
				})).Return(nil)
			},
			wantURL: "/api/analyses/",
		},
		{
			name:       "file too small",
			fileSize:   500,
			mimeType:   "audio/wav",
			mockSetup:  func(testDeps) {},
			wantStatus: 400,
		},
		{
			name:       "file too large",
			fileSize:   25 * 1024 * 1024,
			mimeType:   "audio/wav",
			mockSetup:  func(testDeps) {},
			wantStatus: 400,
		},
		{
			name:     "invalid content type",
			fileSize: 5000,
			mimeType: "audio/wav",
			mockSetup: func(d testDeps) {
				d.store.On("GenerateUploadURL", mock.Anything, mock.Anything, "audio/wav").Return("", fmt.Errorf("invalid content type: audio/unknown"))
			},
			wantStatus: 400,
		},
		{
			name:     "database failure",
			fileSize: 5000,
			mimeType: "audio/wav",
			mockSetup: func(d testDeps) {
				d.store.On("GenerateUploadURL", mock.Anything, mock.Anything, "audio/wav").Return("https://example.com/upload", nil)
				d.repo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, deps := newTestHandler(t)
			tt.mockSetup(deps)

			req := &models.CreateAnalysisRequest{Body: models.CreateAnalysisRequestBody{
				SessionID: "test-session-123",
				FileSize:  tt.fileSize,
				MimeType:  tt.mimeType,
				SignalID:  "balloon_pop",
			}}
			resp, err := handler.CreateAnalysis(context.Background(), req)

			if tt.wantStatus != 0 {
				assert.Equal(t, tt.wantStatus, statusOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, resp.Body.ID)
			assert.True(t, strings.HasPrefix(resp.Body.UploadURL, tt.wantURL), resp.Body.UploadURL)
			assert.Equal(t, 900, resp.Body.ExpiresIn)
		})
	}
}

func TestCreateAnalysisServerUploadPath(t *testing.T) {
	handler, deps := newTestHandler(t)
	deps.store.On("GenerateUploadURL", mock.Anything, mock.Anything, "audio/wav").Return("", storage.ErrPresignUnsupported)
	deps.repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	resp, err := handler.CreateAnalysis(context.Background(), &models.CreateAnalysisRequest{Body: models.CreateAnalysisRequestBody{
		SessionID: "test-session-123",
		FileSize:  5000,
		MimeType:  "audio/wav",
	}})
	require.NoError(t, err)
	assert.Equal(t, "/api/analyses/"+resp.Body.ID+"/audio", resp.Body.UploadURL)
}

func TestUploadAudio(t *testing.T) {
	audio := decayingToneWAV()

	tests := []struct {
		name        string
		id          string
		status      string
		body        []byte
		contentType string
		storeErr    error
		wantStatus  int
	}{
		{name: "stored", status: models.StatusPending, body: audio, contentType: "audio/wav"},
		{name: "invalid id", id: "not-a-uuid", body: audio, wantStatus: 400},
		{name: "already processing", status: models.StatusProcessing, body: audio, contentType: "audio/wav", wantStatus: 409},
		{name: "too small", status: models.StatusPending, body: audio[:100], contentType: "audio/wav", wantStatus: 400},
		{name: "unsupported content type", status: models.StatusPending, body: audio, contentType: "text/plain",
			storeErr: fmt.Errorf("invalid content type: text/plain"), wantStatus: 415},
		{name: "store failure", status: models.StatusPending, body: audio, contentType: "audio/wav",
			storeErr: assert.AnError, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, deps := newTestHandler(t)
			id := uuid.New()
			analysis := pendingAnalysis(id)
			analysis.Status = tt.status

			reqID := tt.id
			if reqID == "" {
				reqID = id.String()
				deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
			}
			if tt.status == models.StatusPending && len(tt.body) >= models.MinUploadSize {
				deps.store.On("UploadFile", mock.Anything, *analysis.AudioS3Key, tt.contentType, tt.body).Return(tt.storeErr)
			}

			resp, err := handler.UploadAudio(context.Background(), &models.UploadAudioRequest{
				ID:          reqID,
				ContentType: tt.contentType,
				RawBody:     tt.body,
			})
			if tt.wantStatus != 0 {
				assert.Equal(t, tt.wantStatus, statusOf(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(audio), resp.Body.Size)
		})
	}
}

func TestUploadAudioUnknownAnalysis(t *testing.T) {
	handler, deps := newTestHandler(t)
	id := uuid.New()
	deps.repo.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := handler.UploadAudio(context.Background(), &models.UploadAudioRequest{ID: id.String(), RawBody: decayingToneWAV()})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestGetAnalysisStatus(t *testing.T) {
	failure := "The audio file could not be decoded"

	tests := []struct {
		name        string
		status      string
		progress    int
		errorMsg    *string
		wantMessage string
		wantResults bool
	}{
		{name: "pending", status: models.StatusPending, wantMessage: "Analysis queued for processing..."},
		{name: "analyzing", status: models.StatusProcessing, progress: 50, wantMessage: "Measuring reverberation..."},
		{name: "failed", status: models.StatusFailed, progress: 50, errorMsg: &failure, wantMessage: "Analysis failed. Please try again."},
		{name: "completed", status: models.StatusCompleted, progress: 100, wantMessage: "Analysis complete!", wantResults: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, deps := newTestHandler(t)
			id := uuid.New()
			analysis := pendingAnalysis(id)
			analysis.Status = tt.status
			analysis.Progress = tt.progress
			analysis.ErrorMsg = tt.errorMsg

			deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
			if tt.wantResults {
				deps.repo.On("GetResults", mock.Anything, id).Return(&models.AnalysisResults{ID: "results-1"}, nil)
			}

			resp, err := handler.GetAnalysisStatus(context.Background(), &models.GetAnalysisStatusRequest{ID: id.String()})
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Body.Status)
			assert.Equal(t, tt.progress, resp.Body.Progress)
			assert.Equal(t, tt.wantMessage, resp.Body.Message)
			assert.Equal(t, tt.errorMsg, resp.Body.Error)
			if tt.wantResults {
				require.NotNil(t, resp.Body.ResultsID)
				assert.Equal(t, "results-1", *resp.Body.ResultsID)
			} else {
				assert.Nil(t, resp.Body.ResultsID)
			}
		})
	}
}

func TestGetAnalysisStatusErrors(t *testing.T) {
	handler, deps := newTestHandler(t)

	_, err := handler.GetAnalysisStatus(context.Background(), &models.GetAnalysisStatusRequest{ID: "bogus"})
	assert.Equal(t, 400, statusOf(t, err))

	missing := uuid.New()
	deps.repo.On("GetByID", mock.Anything, missing).Return(nil, repository.ErrNotFound)
	_, err = handler.GetAnalysisStatus(context.Background(), &models.GetAnalysisStatusRequest{ID: missing.String()})
	assert.Equal(t, 404, statusOf(t, err))

	broken := uuid.New()
	deps.repo.On("GetByID", mock.Anything, broken).Return(nil, errors.New("connection reset"))
	_, err = handler.GetAnalysisStatus(context.Background(), &models.GetAnalysisStatusRequest{ID: broken.String()})
	assert.Equal(t, 500, statusOf(t, err))
}

func TestGetAnalysisResults(t *testing.T) {
	t.Run("completed with room info", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusCompleted

		mid := 0.42
		results := &models.AnalysisResults{
			ID:          "results-1",
			AnalysisID:  id.String(),
			DurationSec: 2,
			SampleRate:  44100,
			RT60:        &mid,
			Bands: []models.BandRT60{
				{Band: models.BandLow, Reason: models.ReasonNoSignal},
				{Band: models.BandMid, Seconds: &mid, Valid: true},
			},
			Resonance: models.ResonancePeak{FrequencyHz: 1000, Magnitude: 0.8},
			RoomModes: []float64{34.3},
		}
		room := &models.RoomInfo{AnalysisID: id.String(), RoomLength: 5, RoomWidth: 4, RoomHeight: 2.5}

		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
		deps.repo.On("GetResults", mock.Anything, id).Return(results, nil)
		deps.repo.On("GetRoomInfo", mock.Anything, id).Return(room, nil)

		resp, err := handler.GetAnalysisResults(context.Background(), &models.GetAnalysisResultsRequest{ID: id.String()})
		require.NoError(t, err)
		assert.Equal(t, "results-1", resp.Body.ID)
		assert.Equal(t, id.String(), resp.Body.AnalysisID)
		assert.Equal(t, 44100, resp.Body.SampleRate)
		assert.Equal(t, &mid, resp.Body.RT60)
		assert.Len(t, resp.Body.Bands, 2)
		assert.Equal(t, 1000.0, resp.Body.Resonance.FrequencyHz)
		assert.Equal(t, []float64{34.3}, resp.Body.RoomModes)
		assert.Equal(t, room, resp.Body.RoomInfo)
	})

	t.Run("without room info", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusCompleted

		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
		deps.repo.On("GetResults", mock.Anything, id).Return(&models.AnalysisResults{ID: "results-2"}, nil)
		deps.repo.On("GetRoomInfo", mock.Anything, id).Return(nil, repository.ErrNotFound)

		resp, err := handler.GetAnalysisResults(context.Background(), &models.GetAnalysisResultsRequest{ID: id.String()})
		require.NoError(t, err)
		assert.Nil(t, resp.Body.RoomInfo)
	})

	t.Run("not completed", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusProcessing
		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)

		_, err := handler.GetAnalysisResults(context.Background(), &models.GetAnalysisResultsRequest{ID: id.String()})
		assert.Equal(t, 409, statusOf(t, err))
	})

	t.Run("results missing", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusCompleted
		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
		deps.repo.On("GetResults", mock.Anything, id).Return(nil, repository.ErrNotFound)

		_, err := handler.GetAnalysisResults(context.Background(), &models.GetAnalysisResultsRequest{ID: id.String()})
		assert.Equal(t, 404, statusOf(t, err))
	})
}

func TestStartProcessing(t *testing.T) {
	t.Run("runs in background", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(nil)

		done := make(chan struct{})
		deps.proc.On("ProcessAnalysis", mock.Anything, id).Return(nil).Run(func(mock.Arguments) { close(done) })

		resp, err := handler.StartProcessing(context.Background(), &models.StartProcessingRequest{ID: id.String()})
		require.NoError(t, err)
		assert.Equal(t, "Processing started successfully", resp.Body.Message)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("processing was not started")
		}
	})

	t.Run("records processing errors", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(nil)
		deps.proc.On("ProcessAnalysis", mock.Anything, id).Return(errors.New("database unavailable"))

		recorded := make(chan struct{})
		deps.repo.On("UpdateError", mock.Anything, id, "Processing failed. Please try again.").
			Return(nil).Run(func(mock.Arguments) { close(recorded) })

		_, err := handler.StartProcessing(context.Background(), &models.StartProcessingRequest{ID: id.String()})
		require.NoError(t, err)

		select {
		case <-recorded:
		case <-time.After(5 * time.Second):
			t.Fatal("processing error was not recorded")
		}
	})

	t.Run("already completed", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusCompleted
		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(fmt.Errorf("%w: analysis is already processing or completed", repository.ErrConflict))

		_, err := handler.StartProcessing(context.Background(), &models.StartProcessingRequest{ID: id.String()})
		assert.Equal(t, 409, statusOf(t, err))
		deps.proc.AssertNotCalled(t, "ProcessAnalysis", mock.Anything, mock.Anything)
	})

	t.Run("concurrent starts run one worker", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		// every request still sees pending; only the claim tells them apart
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(nil).Once()
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(repository.ErrConflict)

		done := make(chan struct{})
		deps.proc.On("ProcessAnalysis", mock.Anything, id).Return(nil).Once().Run(func(mock.Arguments) { close(done) })

		const requests = 5
		statuses := make(chan int, requests)
		var wg sync.WaitGroup
		for range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := handler.StartProcessing(context.Background(), &models.StartProcessingRequest{ID: id.String()})
				var se huma.StatusError
				switch {
				case err == nil:
					statuses <- 200
				case errors.As(err, &se):
					statuses <- se.GetStatus()
				default:
					statuses <- 0
				}
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for code := range statuses {
			counts[code]++
		}
		assert.Equal(t, map[int]int{200: 1, 409: requests - 1}, counts)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("processing was not started")
		}
	})

	t.Run("claim failure", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("ClaimForProcessing", mock.Anything, id).Return(errors.New("connection reset"))

		_, err := handler.StartProcessing(context.Background(), &models.StartProcessingRequest{ID: id.String()})
		assert.Equal(t, 500, statusOf(t, err))
	})
}

func TestAddRoomInfo(t *testing.T) {
	input := models.RoomInfoInput{RoomLength: 5, RoomWidth: 4, RoomHeight: 2.5, FloorType: "hardwood"}

	t.Run("before processing", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("CreateRoomInfo", mock.Anything, mock.MatchedBy(func(info *models.RoomInfo) bool {
			return info.AnalysisID == id.String() && info.RoomLength == 5 && info.FloorType == "hardwood"
		})).Return(nil)

		resp, err := handler.AddRoomInfo(context.Background(), &models.AddRoomInfoRequest{ID: id.String(), Body: input})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Body.ID)
		deps.repo.AssertNotCalled(t, "UpdateRoomModes", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("after completion updates modes", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		analysis := pendingAnalysis(id)
		analysis.Status = models.StatusCompleted
		deps.repo.On("GetByID", mock.Anything, id).Return(analysis, nil)
		deps.repo.On("CreateRoomInfo", mock.Anything, mock.Anything).Return(nil)
		deps.repo.On("UpdateRoomModes", mock.Anything, id, mock.MatchedBy(func(modes []float64) bool {
			return len(modes) > 0 && modes[0] == 34.3
		})).Return(nil)

		_, err := handler.AddRoomInfo(context.Background(), &models.AddRoomInfoRequest{ID: id.String(), Body: input})
		require.NoError(t, err)
	})

	t.Run("completed while saving updates modes", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		processingAnalysis := pendingAnalysis(id)
		processingAnalysis.Status = models.StatusProcessing
		completed := pendingAnalysis(id)
		completed.Status = models.StatusCompleted

		// the worker finishes between the lookup and the insert
		deps.repo.On("GetByID", mock.Anything, id).Return(processingAnalysis, nil).Once()
		deps.repo.On("GetByID", mock.Anything, id).Return(completed, nil).Once()
		deps.repo.On("CreateRoomInfo", mock.Anything, mock.Anything).Return(nil)
		deps.repo.On("UpdateRoomModes", mock.Anything, id, mock.MatchedBy(func(modes []float64) bool {
			return len(modes) > 0 && modes[0] == 34.3
		})).Return(nil)

		_, err := handler.AddRoomInfo(context.Background(), &models.AddRoomInfoRequest{ID: id.String(), Body: input})
		require.NoError(t, err)
	})

	t.Run("duplicate", func(t *testing.T) {
		handler, deps := newTestHandler(t)
		id := uuid.New()
		deps.repo.On("GetByID", mock.Anything, id).Return(pendingAnalysis(id), nil)
		deps.repo.On("CreateRoomInfo", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: room_info_analysis_id_key", repository.ErrConflict))

		_, err := handler.AddRoomInfo(context.Background(), &models.AddRoomInfoRequest{ID: id.String(), Body: input})
		assert.Equal(t, 409, statusOf(t, err))
	})
}

func TestListSessionAnalyses(t *testing.T) {
	handler, deps := newTestHandler(t)
	first := pendingAnalysis(uuid.New())
	deps.repo.On("GetBySessionID", mock.Anything, "test-session-123").Return([]*models.Analysis{first}, nil)
	deps.repo.On("GetBySessionID", mock.Anything, "empty-session-1").Return(nil, nil)

	resp, err := handler.ListSessionAnalyses(context.Background(), &models.ListSessionAnalysesRequest{SessionID: "test-session-123"})
	require.NoError(t, err)
	assert.Equal(t, []*models.Analysis{first}, resp.Body.Analyses)

	resp, err = handler.ListSessionAnalyses(context.Background(), &models.ListSessionAnalysesRequest{SessionID: "empty-session-1"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Body.Analyses)
	assert.Empty(t, resp.Body.Analyses)
}

func TestAnalyze(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp, err := handler.Analyze(context.Background(), &models.AnalyzeUploadRequest{Filename: "tone.wav", RawBody: decayingToneWAV()})
	require.NoError(t, err)

	report := resp.Body
	assert.Equal(t, 44100, report.SampleRate)
	assert.Equal(t, "wav", report.Format)
	require.Len(t, report.Bands, 3)

	low := report.Bands[0]
	assert.Equal(t, models.BandLow, low.Band)
	assert.False(t, low.Valid)
	assert.Nil(t, low.Seconds)
	assert.NotEmpty(t, low.Reason)

	mid := report.Bands[1]
	assert.True(t, mid.Valid)
	require.NotNil(t, mid.Seconds)
	assert.InDelta(t, 0.3, *mid.Seconds, 0.05)
	assert.InDelta(t, 1000, report.Resonance.FrequencyHz, 1)
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		body       []byte
		wantStatus int
	}{
		{name: "empty body", filename: "tone.wav", wantStatus: 400},
		{name: "unsupported format", filename: "notes.txt", body: []byte("hello, this is plain text"), wantStatus: 415},
		{name: "corrupt wav", filename: "tone.wav", body: []byte("RIFF\x24\x00\x00\x00WAVEjunkjunkjunk"), wantStatus: 422},
		{name: "too short to analyze", filename: "click.wav", body: audiotest.MonoWAV16(8000, []float64{0.5}), wantStatus: 422},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(t)
			_, err := handler.Analyze(context.Background(), &models.AnalyzeUploadRequest{Filename: tt.filename, RawBody: tt.body})
			assert.Equal(t, tt.wantStatus, statusOf(t, err))
		})
	}
}

func TestGenerateStatusMessage(t *testing.T) {
	tests := []struct {
		status   string
		progress int
		want     string
	}{
		{models.StatusProcessing, 10, "Starting analysis..."},
		{models.StatusProcessing, 20, "Downloading audio file..."},
		{models.StatusProcessing, 50, "Measuring reverberation..."},
		{models.StatusProcessing, 90, "Finalizing results..."},
		{"archived", 0, "Unknown status"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, generateStatusMessage(tt.status, tt.progress))
	}
}
