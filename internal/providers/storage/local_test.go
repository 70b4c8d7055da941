package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPutOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir(), "http://localhost/images/")
	require.NoError(t, err)

	ref, err := store.Put(ctx, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-Z]{26}\.jpg$`, ref)
	assert.Equal(t, "http://localhost/images/"+ref, store.URL(ref))

	rc, contentType, err := store.Open(ctx, ref)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(body))
	assert.Equal(t, "image/jpeg", contentType)

	require.NoError(t, store.Delete(ctx, ref))
	_, _, err = store.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsPathTraversal(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	_, _, err = store.Open(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestLocalRefsAreUnique(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		ref, err := store.Put(context.Background(), []byte{byte(i)}, "image/png")
		require.NoError(t, err)
		_, dup := seen[ref]
		require.False(t, dup, "duplicate ref %s", ref)
		seen[ref] = struct{}{}
	}
}
