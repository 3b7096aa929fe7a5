package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveServeRemove(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := store.Save(ctx, "tenant-1", "Screen Shot.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(len("png-bytes")), stored.Size)
	require.True(t, strings.HasPrefix(stored.Key, "tenant-1/"))
	require.True(t, strings.HasSuffix(stored.Key, ".png"))
	require.Equal(t, URLPrefix+stored.Key, stored.URL)

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, stored.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(body))

	rec = httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, URLPrefix+"tenant-1/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Error(t, store.Remove(ctx, "tenant-2", stored.Key))
	require.NoError(t, store.Remove(ctx, "tenant-1", stored.Key))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.Key)))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, store.Remove(ctx, "tenant-1", stored.Key), "removing twice is a no-op")
}

func TestTenantSegmentSanitises(t *testing.T) {
	require.Equal(t, "_", tenantSegment(""))
	require.Equal(t, "_", tenantSegment(".."))
	require.Equal(t, "a_b", tenantSegment("a/b"))
}
