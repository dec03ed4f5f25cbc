package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stemsi/interview-room/internal/config"
)

// Sentinel errors for media storage.
var (
	ErrChunkTooLarge  = errors.New("media chunk too large")
	ErrEmptyRecording = errors.New("empty recording")
	ErrInvalidAttempt = errors.New("invalid attempt id")
)

// MediaService stores recorder chunks and final recordings on local disk.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// SaveChunk writes one recorder chunk as <upload>/<attempt>/chunk_<index>.webm.
func (s *MediaService) SaveChunk(attemptID uuid.UUID, chunk []byte, index int) (string, error) {
	if int64(len(chunk)) > s.cfg.MaxChunkBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrChunkTooLarge, len(chunk), s.cfg.MaxChunkBytes)
	}
	if index < 0 {
		return "", fmt.Errorf("negative chunk index %d", index)
	}
	return s.write(attemptID, fmt.Sprintf("chunk_%06d.webm", index), chunk)
}

// SaveRecording writes the complete recording and returns its relative URL path.
func (s *MediaService) SaveRecording(attemptID uuid.UUID, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", ErrEmptyRecording
	}
	return s.write(attemptID, "recording_"+uuid.New().String()+".webm", blob)
}

func (s *MediaService) write(attemptID uuid.UUID, name string, data []byte) (string, error) {
	if attemptID == uuid.Nil {
		return "", ErrInvalidAttempt
	}

	dir := filepath.Join(s.cfg.UploadDir, attemptID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	destPath := filepath.Join(dir, name)
	tmp := destPath + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return "", fmt.Errorf("commit file: %w", err)
	}

	return "/uploads/" + attemptID.String() + "/" + name, nil
}
