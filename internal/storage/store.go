package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/RMahshie/decaymeter/internal/config"
)

// ErrPresignUnsupported is returned by stores that cannot hand out direct
// upload URLs. Clients then upload through the API instead.
var ErrPresignUnsupported = errors.New("pre-signed URLs are not supported by this store")

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store handles audio file storage operations
type Store interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
	UploadFile(ctx context.Context, key string, contentType string, data []byte) error
	DownloadFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverS3:
		return NewS3Service(S3Config{
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKeyID,
			SecretKey: cfg.SecretAccessKey,
		})
	case config.DriverMinIO:
		return NewMinIOStore(ctx, MinIOConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKeyID,
			SecretKey: cfg.SecretAccessKey,
			UseSSL:    cfg.UseSSL,
		})
	case config.DriverLocal, "":
		return NewLocalStore(nil, cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// AudioKey returns the object key for an analysis recording
func AudioKey(analysisID, contentType string) string {
	return path.Join("audio", analysisID+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/aiff", "audio/x-aiff":
		return ".aiff"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	return ""
}

// validateContentType validates that the content type is supported
func validateContentType(contentType string) error {
	// strip parameters such as "; codecs=vorbis"
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if extensionFor(base) == "" {
		return fmt.Errorf("invalid content type: %s. Supported types: audio/wav, audio/aiff, audio/mpeg, audio/ogg", contentType)
	}
	return nil
}
