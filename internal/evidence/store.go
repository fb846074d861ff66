package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// ErrBlobMissing is returned by BlobStore.Remove when the content is already gone.
var ErrBlobMissing = errors.New("blob missing")

// BlobStore persists artifact content under generated keys.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, ref string) error
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

var allowedExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// Artifact is one uploaded file.
type Artifact struct {
	Name      string
	MediaType string
	Size      int64
	Content   io.Reader
}

// ValidateMediaType accepts jpeg, png and gif images.
func ValidateMediaType(mediaType string) (string, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "", domain.NewValidationError("files", "invalid media type %q", mediaType)
	}
	mt = strings.ToLower(mt)
	if _, ok := allowedTypes[mt]; !ok {
		return "", domain.NewValidationError("files", "invalid file type: %s. Only images are allowed", mediaType)
	}
	return mt, nil
}

// ObjectKey returns prefix/<uuid><ext>, keeping the original extension when it
// matches the media type family.
func ObjectKey(prefix, name, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExts[ext]; !ok {
		ext = allowedTypes[mediaType]
	}
	return path.Join(prefix, uuid.NewString()+ext)
}

type Store struct {
	Repo   repo.Repo
	Blobs  BlobStore
	Logger *slog.Logger
	Now    func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// PutBlob validates and stores artifact content under prefix, returning its reference.
func (s Store) PutBlob(ctx context.Context, prefix string, a Artifact) (string, error) {
	mt, err := ValidateMediaType(a.MediaType)
	if err != nil {
		return "", err
	}
	if a.Content == nil {
		return "", domain.NewValidationError("files", "empty file %q", a.Name)
	}
	ref, err := s.Blobs.Put(ctx, ObjectKey(prefix, a.Name, mt), mt, a.Content, a.Size)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", a.Name, err)
	}
	return ref, nil
}

// Add stores the artifact content and its metadata record for taskID.
func (s Store) Add(ctx context.Context, taskID string, a Artifact) (domain.Evidence, error) {
	ref, err := s.PutBlob(ctx, "tasks", a)
	if err != nil {
		return domain.Evidence{}, err
	}
	ev := domain.Evidence{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		FileURL:    ref,
		UploadedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertEvidence(ctx, nil, ev); err != nil {
		if rmErr := s.Blobs.Remove(ctx, ref); rmErr != nil && !errors.Is(rmErr, ErrBlobMissing) {
			s.logger().Warn("evidence: orphaned blob", "ref", ref, "error", rmErr)
		}
		return domain.Evidence{}, fmt.Errorf("insert evidence: %w", err)
	}
	return ev, nil
}

func (s Store) List(ctx context.Context, taskID string) ([]domain.Evidence, error) {
	return s.Repo.ListEvidence(ctx, nil, taskID)
}

// DeleteOutcome reports a content removal failure that did not stop the
// metadata record from being removed.
type DeleteOutcome struct {
	ContentErr error
}

// Delete removes the stored content, then the metadata record. Missing content
// counts as removed; other content errors are reported in the outcome only.
func (s Store) Delete(ctx context.Context, ev domain.Evidence) (DeleteOutcome, error) {
	var out DeleteOutcome
	if err := s.Blobs.Remove(ctx, ev.FileURL); err != nil && !errors.Is(err, ErrBlobMissing) {
		s.logger().Warn("evidence: content removal failed", "evidence_id", ev.ID, "ref", ev.FileURL, "error", err)
		out.ContentErr = err
	}
	if err := s.Repo.DeleteEvidence(ctx, nil, ev.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return out, fmt.Errorf("delete evidence %s: %w", ev.ID, err)
	}
	return out, nil
}
