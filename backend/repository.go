package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
)

// Repository manages model files stored flat under one directory.
type Repository struct {
	dir string
}

// NewRepository creates a Repository rooted at dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// List returns the model file names, sorted. A missing directory holds no models.
func (r *Repository) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the absolute path of a stored model.
func (r *Repository) Path(_ context.Context, name string) (string, error) {
	path, err := r.resolve(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return "", &domainerrors.BackendError{Backend: name, Op: "path", Err: domainerrors.ErrModelNotFound}
	}
	if err != nil {
		return "", fmt.Errorf("stat model %s: %w", name, err)
	}
	return filepath.Abs(path)
}

// Delete removes a stored model.
func (r *Repository) Delete(ctx context.Context, name string) error {
	path, err := r.Path(ctx, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete model %s: %w", name, err)
	}
	return nil
}

// resolve maps a model name onto a path inside the repository.
func (r *Repository) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return "", &domainerrors.BackendError{Backend: name, Op: "resolve", Err: domainerrors.ErrInvalidModelName}
	}
	return filepath.Join(r.dir, name), nil
}
