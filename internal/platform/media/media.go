// Package media stores uploaded files: message attachments, consultation
// recordings, prescription PDFs and generated reports. Production uses a
// third-party media API; development and tests use an in-memory store.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrObjectNotFound     = errors.New("media object not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// Categories group objects by owner module. Each has its own content types.
const (
	CategoryAttachment   = "attachment"
	CategoryRecording    = "recording"
	CategoryPrescription = "prescription"
	CategoryReport       = "report"
)

const (
	MaxAttachmentSize = 25 << 20
	MaxRecordingSize  = 2 << 30
	maxDefaultSize    = 50 << 20
)

var allowedContentTypes = map[string]map[string]bool{
	CategoryAttachment: {
		"image/png": true, "image/jpeg": true, "image/gif": true, "image/webp": true,
		"application/pdf": true, "text/plain": true,
	},
	CategoryRecording: {
		"video/webm": true, "video/mp4": true, "audio/webm": true,
		"audio/mpeg": true, "audio/ogg": true,
	},
	CategoryPrescription: {"application/pdf": true},
	CategoryReport: {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	},
}

// Metadata describes a stored object.
type Metadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Category    string    `json:"category"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	URL         string    `json:"url,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is implemented by every storage backend.
type Store interface {
	Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
}

// Validate checks the file name and content type for the category. Content
// type parameters such as "; codecs=vp8" are ignored.
func Validate(meta Metadata) error {
	if strings.TrimSpace(meta.FileName) == "" {
		return ErrMissingFileName
	}
	allowed, ok := allowedContentTypes[meta.Category]
	if !ok {
		return fmt.Errorf("unknown media category %q", meta.Category)
	}
	ct := strings.TrimSpace(strings.SplitN(meta.ContentType, ";", 2)[0])
	if !allowed[strings.ToLower(ct)] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}
	return nil
}

// MaxSize returns the upload size limit for category.
func MaxSize(category string) int64 {
	switch category {
	case CategoryRecording:
		return MaxRecordingSize
	case CategoryAttachment:
		return MaxAttachmentSize
	default:
		return maxDefaultSize
	}
}
