// Package media stores task attachments on the local filesystem.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"example.com/taskflow/internal/domain"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/media/"

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Store keeps attachments below a root directory, one subdirectory per tenant.
type Store struct {
	root string
}

// NewStore creates the root directory when missing.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes body under a fresh UUID name that keeps the original extension.
func (s *Store) Save(ctx context.Context, tenantID, filename string, body io.Reader) (domain.StoredMedia, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredMedia{}, err
	}
	tenantDir := tenantSegment(tenantID)
	if err := os.MkdirAll(filepath.Join(s.root, tenantDir), 0o755); err != nil {
		return domain.StoredMedia{}, fmt.Errorf("create tenant media dir: %w", err)
	}

	ext := strings.ToLower(unsafeSegment.ReplaceAllString(filepath.Ext(filename), ""))
	key := path.Join(tenantDir, uuid.NewString()+ext)
	target := filepath.Join(s.root, filepath.FromSlash(key))

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.StoredMedia{}, fmt.Errorf("create media file: %w", err)
	}
	size, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(target)
		return domain.StoredMedia{}, fmt.Errorf("write media file: %w", err)
	}

	return domain.StoredMedia{Key: key, URL: URLPrefix + key, Size: size}, nil
}

// Remove deletes a stored file. Missing files are ignored.
func (s *Store) Remove(_ context.Context, tenantID, key string) error {
	if !strings.HasPrefix(key, tenantSegment(tenantID)+"/") || strings.Contains(key, "..") {
		return fmt.Errorf("media key %q does not belong to tenant", key)
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

// Handler serves stored files read-only under URLPrefix. Directory listings are refused.
func (s *Store) Handler() http.Handler {
	files := http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func tenantSegment(tenantID string) string {
	seg := unsafeSegment.ReplaceAllString(tenantID, "_")
	if seg == "" || strings.Trim(seg, ".") == "" {
		return "_"
	}
	return seg
}

var _ domain.MediaStore = (*Store)(nil)
