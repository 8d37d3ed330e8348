// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/vodpipe/internal/fsutil"
	"github.com/ManuGH/vodpipe/internal/log"
)

// ObjectsPath is where the filesystem store's handler is mounted.
const ObjectsPath = "/objects/"

// FSConfig configures a local filesystem object store.
type FSConfig struct {
	Root string
	// BaseURL is the externally reachable origin of this service,
	// e.g. http://localhost:8080. Signed URLs point at BaseURL+ObjectsPath.
	BaseURL string
	// Secret signs URLs with HMAC-SHA256.
	Secret string
	// MaxUploadBytes bounds PUT bodies; 0 means unlimited.
	MaxUploadBytes int64
}

// FSStore keeps objects as files under a root directory and serves
// HMAC-signed URLs through its own HTTP handler.
type FSStore struct {
	root      string
	baseURL   string
	secret    []byte
	maxUpload int64
	now       func() time.Time
	logger    zerolog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates the root directory if needed.
func NewFSStore(cfg FSConfig) (*FSStore, error) {
	if cfg.Root == "" {
		return nil, errors.New("objectstore: fs root is required")
	}
	if cfg.Secret == "" {
		return nil, errors.New("objectstore: fs signing secret is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("objectstore: create root: %w", err)
	}
	return &FSStore{
		root:      cfg.Root,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secret:    []byte(cfg.Secret),
		maxUpload: cfg.MaxUploadBytes,
		now:       time.Now,
		logger:    log.WithComponent("objectstore.fs"),
	}, nil
}

func (s *FSStore) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("objectstore: invalid key %q", key)
	}
	p, err := fsutil.Confine(s.root, filepath.FromSlash(key))
	if err != nil {
		return "", fmt.Errorf("objectstore: key %q: %w", key, err)
	}
	return p, nil
}

func (s *FSStore) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("objectstore: mkdir for %s: %w", key, err)
	}

	pendingFile, err := renameio.NewPendingFile(p, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("objectstore: create pending file for %s: %w", key, err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Str(log.FieldObjectKey, key).Msg("cleanup pending object file")
		}
	}()

	if _, err := io.Copy(pendingFile, readerWithContext(ctx, body)); err != nil {
		return fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("objectstore: commit %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Get(_ context.Context, key string) (*Object, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objectstore: open %s: %w", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("objectstore: stat %s: %w", key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return &Object{Body: f, Size: st.Size(), ContentType: ContentTypeFor(key)}, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	dir := strings.TrimSuffix(prefix, "/")
	p, err := s.path(dir)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			deleted++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("objectstore: walk %s: %w", prefix, err)
	}
	if err := os.RemoveAll(p); err != nil {
		return 0, fmt.Errorf("objectstore: remove %s: %w", prefix, err)
	}
	return deleted, nil
}

func (s *FSStore) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	return s.sign(http.MethodPut, key, ttl)
}

func (s *FSStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return s.sign(http.MethodGet, key, ttl)
}

func (s *FSStore) Ping(context.Context) error {
	st, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("objectstore: stat root: %w", err)
	}
	if !st.IsDir() {
		return fmt.Errorf("objectstore: root %s is not a directory", s.root)
	}
	return nil
}

func (s *FSStore) sign(method, key string, ttl time.Duration) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("objectstore: invalid key %q", key)
	}
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signature(method, key, expires))
	return s.baseURL + ObjectsPath + key + "?" + q.Encode(), nil
}

func (s *FSStore) signature(method, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks a signed request for key.
func (s *FSStore) verify(method, key string, q url.Values) error {
	if q.Get("method") != method {
		return errors.New("method mismatch")
	}
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return errors.New("malformed expiry")
	}
	if s.now().Unix() > expires {
		return errors.New("url expired")
	}
	want := s.signature(method, key, expires)
	if !hmac.Equal([]byte(want), []byte(q.Get("sig"))) {
		return errors.New("bad signature")
	}
	return nil
}

// Handler serves signed GET and PUT requests under ObjectsPath.
func (s *FSStore) Handler() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(ObjectsPath, "/"), http.HandlerFunc(s.serveObject))
}

func (s *FSStore) serveObject(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if !ValidKey(key) {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}

	if err := s.verify(r.Method, key, r.URL.Query()); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldObjectKey, key).Str(log.FieldMethod, r.Method).Msg("rejected object request")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body := io.Reader(r.Body)
		if s.maxUpload > 0 {
			body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		}
		if err := s.Put(r.Context(), key, body, r.ContentLength, r.Header.Get("Content-Type")); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				http.Error(w, "object too large", http.StatusRequestEntityTooLarge)
				return
			}
			s.logger.Error().Err(err).Str(log.FieldObjectKey, key).Msg("object upload failed")
			http.Error(w, "upload failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		obj, err := s.Get(r.Context(), key)
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, "read failed", http.StatusInternalServerError)
			return
		}
		defer obj.Body.Close()
		w.Header().Set("Content-Type", obj.ContentType)
		if f, ok := obj.Body.(*os.File); ok {
			if st, err := f.Stat(); err == nil {
				http.ServeContent(w, r, "", st.ModTime(), f)
				return
			}
		}
		_, _ = io.Copy(w, obj.Body)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
