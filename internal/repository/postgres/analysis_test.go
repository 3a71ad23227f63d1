package postgres

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/RMahshie/decaymeter/internal/repository"
	"github.com/RMahshie/decaymeter/pkg/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := pgContainer.Run(ctx,
		"postgres:15-alpine",
		pgContainer.WithDatabase("decaymeter_test"),
		pgContainer.WithUsername("testuser"),
		pgContainer.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	// applying twice is harmless
	require.NoError(t, Migrate(ctx, db))
	return db
}

func newAnalysis(sessionID string, created time.Time) *models.Analysis {
	key := "audio/" + uuid.New().String() + ".wav"
	return &models.Analysis{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		SignalID:   "balloon_pop",
		Status:     models.StatusPending,
		AudioS3Key: &key,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestAnalysisRepository_Integration(t *testing.T) {
	db := setupDB(t)
	repo := NewPostgresAnalysisRepository(db)
	ctx := context.Background()

	session := "session-" + uuid.New().String()[:8]
	older := newAnalysis(session, time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond))
	newer := newAnalysis(session, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, uuid.MustParse(newer.ID))
		require.NoError(t, err)
		assert.Equal(t, newer.SessionID, got.SessionID)
		assert.Equal(t, "balloon_pop", got.SignalID)
		assert.Equal(t, *newer.AudioS3Key, *got.AudioS3Key)
		assert.Nil(t, got.ErrorMsg)
		assert.Nil(t, got.CompletedAt)

		_, err = repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("session listing is newest first", func(t *testing.T) {
		list, err := repo.GetBySessionID(ctx, session)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		empty, err := repo.GetBySessionID(ctx, "nobody-here")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("status and error", func(t *testing.T) {
		id := uuid.MustParse(older.ID)
		require.NoError(t, repo.UpdateStatus(ctx, id, models.StatusProcessing, 50))

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
		assert.Equal(t, 50, got.Progress)

		require.NoError(t, repo.UpdateError(ctx, id, "could not decode audio"))
		got, err = repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, got.Status)
		require.NotNil(t, got.ErrorMsg)
		assert.Equal(t, "could not decode audio", *got.ErrorMsg)

		assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), models.StatusProcessing, 10), repository.ErrNotFound)
	})

	t.Run("claim for processing", func(t *testing.T) {
		// older failed above and may be retried
		id := uuid.MustParse(older.ID)
		require.NoError(t, repo.ClaimForProcessing(ctx, id))

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
		assert.Equal(t, 0, got.Progress)
		assert.Nil(t, got.ErrorMsg)

		assert.ErrorIs(t, repo.ClaimForProcessing(ctx, id), repository.ErrConflict)
		assert.ErrorIs(t, repo.ClaimForProcessing(ctx, uuid.New()), repository.ErrNotFound)
	})

	t.Run("concurrent claims admit one worker", func(t *testing.T) {
		pending := newAnalysis(session+"-claims", time.Now().UTC())
		require.NoError(t, repo.Create(ctx, pending))
		id := uuid.MustParse(pending.ID)

		const workers = 8
		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.ClaimForProcessing(ctx, id)
			}()
		}
		wg.Wait()
		close(errs)

		won := 0
		for err := range errs {
			if err == nil {
				won++
				continue
			}
			assert.ErrorIs(t, err, repository.ErrConflict)
		}
		assert.Equal(t, 1, won)
	})

	t.Run("results", func(t *testing.T) {
		id := uuid.MustParse(newer.ID)
		mid := 0.42
		fitErr := 0.3
		results := &models.AnalysisResults{
			ID:          uuid.New().String(),
			AnalysisID:  newer.ID,
			DurationSec: 2,
			SampleRate:  44100,
			RT60:        &mid,
			Bands: []models.BandRT60{
				{Band: models.BandLow, LowHz: 20, HighHz: 250, Reason: models.ReasonNoSignal},
				{Band: models.BandMid, LowHz: 250, HighHz: 1000, Seconds: &mid, Valid: true, FitErrorDb: &fitErr, RangeDb: 20},
			},
			Resonance:     models.ResonancePeak{FrequencyHz: 1000, Magnitude: 0.8},
			FrequencyData: []models.FrequencyPoint{{Frequency: 20, Magnitude: -80}, {Frequency: 1000, Magnitude: -2}},
			CreatedAt:     time.Now().UTC(),
		}
		require.NoError(t, repo.StoreResults(ctx, results))
		require.NoError(t, repo.UpdateStatus(ctx, id, models.StatusCompleted, 100))

		got, err := repo.GetResults(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.RT60)
		assert.InDelta(t, 0.42, *got.RT60, 1e-12)
		require.Len(t, got.Bands, 2)
		assert.Nil(t, got.Bands[0].Seconds)
		assert.False(t, got.Bands[0].Valid)
		assert.Equal(t, models.ReasonNoSignal, got.Bands[0].Reason)
		assert.InDelta(t, 0.42, *got.Bands[1].Seconds, 1e-12)
		assert.Equal(t, results.Resonance, got.Resonance)
		assert.Equal(t, results.FrequencyData, got.FrequencyData)
		assert.Nil(t, got.RoomModes)

		require.NoError(t, repo.UpdateRoomModes(ctx, id, []float64{34.3, 68.6}))
		got, err = repo.GetResults(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []float64{34.3, 68.6}, got.RoomModes)

		analysis, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, analysis.CompletedAt)

		_, err = repo.GetResults(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("room info", func(t *testing.T) {
		info := &models.RoomInfo{
			ID:         uuid.New().String(),
			AnalysisID: newer.ID,
			RoomLength: 5,
			RoomWidth:  4,
			RoomHeight: 2.5,
			FloorType:  "hardwood",
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, repo.CreateRoomInfo(ctx, info))

		got, err := repo.GetRoomInfo(ctx, uuid.MustParse(newer.ID))
		require.NoError(t, err)
		assert.Equal(t, 5.0, got.RoomLength)
		assert.Equal(t, "hardwood", got.FloorType)
		assert.Empty(t, got.AdditionalNotes)

		dup := *info
		dup.ID = uuid.New().String()
		assert.ErrorIs(t, repo.CreateRoomInfo(ctx, &dup), repository.ErrConflict)

		_, err = repo.GetRoomInfo(ctx, uuid.MustParse(older.ID))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
