package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSBlobs keeps blobs as files under Dir. References are slash-separated
// paths relative to Dir.
type FSBlobs struct {
	Dir string
}

func (b FSBlobs) resolve(ref string) (string, error) {
	rel := filepath.FromSlash(ref)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid blob reference %q", ref)
	}
	return filepath.Join(b.Dir, rel), nil
}

func (b FSBlobs) Put(_ context.Context, key, _ string, r io.Reader, _ int64) (string, error) {
	path, err := b.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return key, nil
}

func (b FSBlobs) Remove(_ context.Context, ref string) error {
	path, err := b.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobMissing
		}
		return err
	}
	return nil
}
