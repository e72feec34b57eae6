package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.gguf"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.gguf"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))

	repo := NewRepository(dir)

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.gguf", "b.gguf"}, names)

	path, err := repo.Path(ctx, "a.gguf")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "a.gguf", filepath.Base(path))

	_, err = repo.Path(ctx, "missing.gguf")
	assert.ErrorIs(t, err, domainerrors.ErrModelNotFound)
	_, err = repo.Path(ctx, "subdir")
	assert.ErrorIs(t, err, domainerrors.ErrModelNotFound)

	for _, bad := range []string{"", "..", "../etc/passwd", "a/b"} {
		_, err = repo.Path(ctx, bad)
		assert.ErrorIs(t, err, domainerrors.ErrInvalidModelName, bad)
	}

	require.NoError(t, repo.Delete(ctx, "a.gguf"))
	names, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.gguf"}, names)
	assert.ErrorIs(t, repo.Delete(ctx, "a.gguf"), domainerrors.ErrModelNotFound)
}

func TestRepository_MissingDir(t *testing.T) {
	names, err := NewRepository(filepath.Join(t.TempDir(), "none")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
