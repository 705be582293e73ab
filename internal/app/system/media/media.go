// Package media is the page builder's side of the media store: it hands out
// short-lived upload credentials, stores uploaded images and videos in the
// configured blob store, and deletes blobs by handle.
//
// A MediaFile's FileID is the blob's storage path. Pages only ever hold the
// {file, fileId, thumbnail} reference, never bytes.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultCredentialTTL = 30 * time.Minute
	DefaultMaxUploadSize = 64 << 20
	// sniffLen is how much of an upload is read to detect its type.
	sniffLen = 3072
)

// Blobs is the slice of a waffle storage.Store the service uses.
type Blobs interface {
	Put(ctx context.Context, path string, r io.Reader, opts *storage.PutOptions) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// RetryQueue records blob deletions to retry later.
type RetryQueue interface {
	Enqueue(ctx context.Context, fileID string, cause error) error
}

// Config configures a Service.
type Config struct {
	// PublicKey is echoed in credentials so clients can tell which
	// deployment issued them.
	PublicKey string
	// SigningKey authenticates credentials. At least 32 bytes.
	SigningKey    []byte
	CredentialTTL time.Duration
	MaxUploadSize int64
}

// Credentials authorize one upload.
type Credentials struct {
	Token     string `json:"token"`
	Expire    int64  `json:"expire"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// Result describes a stored upload.
type Result struct {
	URL          string `json:"url"`
	FileID       string `json:"fileId"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
}

// MediaFile returns the reference a section stores for r.
func (r Result) MediaFile() models.MediaFile {
	return models.MediaFile{File: r.URL, FileID: r.FileID, Thumbnail: r.ThumbnailURL}
}

// Service is safe for concurrent use.
type Service struct {
	blobs  Blobs
	retry  RetryQueue
	codec  *securecookie.SecureCookie
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time // spent tokens until they expire
}

// New creates a Service. retry may be nil, in which case failed
// best-effort deletions are only logged.
func New(blobs Blobs, retry RetryQueue, cfg Config, logger *zap.Logger) (*Service, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("media: signing key must be at least 32 bytes")
	}
	if cfg.CredentialTTL <= 0 {
		cfg.CredentialTTL = DefaultCredentialTTL
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	codec := securecookie.New(cfg.SigningKey, nil)
	codec.MaxAge(int(cfg.CredentialTTL / time.Second))
	return &Service{
		blobs:  blobs,
		retry:  retry,
		codec:  codec,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		used:   make(map[string]time.Time),
	}, nil
}

/* ------------------------------ credentials ------------------------------ */

const credentialName = "media-upload"

type credentialPayload struct {
	Token  string
	Expire int64
}

// UploadAuth issues credentials for a single upload.
func (s *Service) UploadAuth() (Credentials, error) {
	p := credentialPayload{
		Token:  uuid.NewString(),
		Expire: s.now().Add(s.cfg.CredentialTTL).Unix(),
	}
	sig, err := s.codec.Encode(credentialName, p)
	if err != nil {
		return Credentials{}, fmt.Errorf("sign upload credentials: %w", err)
	}
	return Credentials{
		Token:     p.Token,
		Expire:    p.Expire,
		Signature: sig,
		PublicKey: s.cfg.PublicKey,
	}, nil
}

// verify checks c and spends its token.
func (s *Service) verify(c Credentials) error {
	if c.Token == "" || c.Signature == "" {
		return apperr.Invalid("signature", "upload credentials are required")
	}
	var p credentialPayload
	if err := s.codec.Decode(credentialName, c.Signature, &p); err != nil {
		return apperr.Invalid("signature", "upload credentials are invalid or expired")
	}
	now := s.now()
	if p.Token != c.Token || p.Expire != c.Expire {
		return apperr.Invalid("signature", "upload credentials do not match")
	}
	if now.Unix() > p.Expire {
		return apperr.Invalid("expire", "upload credentials have expired")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, exp := range s.used {
		if now.After(exp) {
			delete(s.used, tok)
		}
	}
	if _, spent := s.used[p.Token]; spent {
		return apperr.Invalid("token", "upload credentials were already used")
	}
	s.used[p.Token] = time.Unix(p.Expire, 0)
	return nil
}

/* -------------------------------- upload -------------------------------- */

// Upload stores r as a new blob after checking creds. Only images and
// videos are accepted. name is used for its extension when the content
// type has none.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader, creds Credentials) (Result, error) {
	if err := s.verify(creds); err != nil {
		return Result{}, err
	}
	return s.store(ctx, name, r)
}

func (s *Service) store(ctx context.Context, name string, r io.Reader) (Result, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("read upload: %w: %w", apperr.ErrMediaOperation, err)
	}
	head = head[:n]
	if n == 0 {
		return Result{}, apperr.Invalid("file", "file is empty")
	}

	mt := mimetype.Detect(head)
	if !Allowed(mt) {
		return Result{}, apperr.Invalid("file", fmt.Sprintf("%s files are not accepted; upload an image or video", mt.String()))
	}

	ext := mt.Extension()
	if ext == "" {
		ext = strings.ToLower(path.Ext(name))
	}
	now := s.now().UTC()
	key := fmt.Sprintf("media/%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext)

	body := &limitedReader{r: io.MultiReader(bytes.NewReader(head), r), remaining: s.cfg.MaxUploadSize}
	opts := &storage.PutOptions{ContentType: mt.String()}
	if err := s.blobs.Put(ctx, key, body, opts); err != nil {
		if body.exceeded {
			s.discard(ctx, key)
			return Result{}, apperr.Invalid("file", fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadSize))
		}
		return Result{}, fmt.Errorf("store %s: %w: %w", key, apperr.ErrMediaOperation, err)
	}
	if body.exceeded {
		s.discard(ctx, key)
		return Result{}, apperr.Invalid("file", fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadSize))
	}

	url := s.blobs.URL(key)
	s.logger.Info("media uploaded",
		zap.String("file_id", key),
		zap.String("content_type", mt.String()),
		zap.Int64("size", body.read))
	return Result{
		URL:          url,
		FileID:       key,
		ThumbnailURL: url,
		ContentType:  mt.String(),
		Size:         body.read,
	}, nil
}

// discard removes a partially stored oversize upload.
func (s *Service) discard(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove oversize upload", zap.String("file_id", key), zap.Error(err))
	}
}

// Allowed reports whether a detected type may be uploaded.
func Allowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "image/") || strings.HasPrefix(s, "video/") {
			return true
		}
	}
	return false
}

var errTooLarge = errors.New("upload exceeds size limit")

type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// Probe for one more byte to tell "exactly at limit" from "over".
		var one [1]byte
		n, err := l.r.Read(one[:])
		if n > 0 {
			l.exceeded = true
			return 0, errTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	l.read += int64(n)
	return n, err
}

/* -------------------------------- delete -------------------------------- */

// Delete removes the blob with the given handle.
func (s *Service) Delete(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return apperr.Invalid("fileId", "file id is required")
	}
	if !IsFileID(fileID) {
		return apperr.Invalid("fileId", "not a media file id")
	}
	if err := s.blobs.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete %s: %w: %w", fileID, apperr.ErrMediaOperation, err)
	}
	s.logger.Info("media deleted", zap.String("file_id", fileID))
	return nil
}

// IsFileID reports whether id looks like a handle this service issued:
// a clean path under media/.
func IsFileID(id string) bool {
	return strings.HasPrefix(id, "media/") &&
		!strings.Contains(id, "..") &&
		path.Clean(id) == id
}

// Release deletes an old blob without failing the caller. A failed delete
// is logged and queued for retry. It reports whether the blob is gone now.
func (s *Service) Release(ctx context.Context, old *models.MediaFile) bool {
	if !old.Deletable() {
		return true
	}
	err := s.Delete(ctx, old.FileID)
	if err == nil {
		return true
	}
	s.logger.Warn("best-effort media delete failed; blob may be orphaned",
		zap.String("file_id", old.FileID), zap.Error(err))
	if s.retry != nil && !errors.Is(err, apperr.ErrValidation) {
		if qerr := s.retry.Enqueue(ctx, old.FileID, err); qerr != nil {
			s.logger.Warn("could not queue media delete for retry",
				zap.String("file_id", old.FileID), zap.Error(qerr))
		}
	}
	return false
}

// Replace uploads a new blob in place of old. The two steps are
// independent: credentials are checked first, then the old blob is
// released best-effort, then the new one is uploaded. A failed release
// never blocks the upload.
func (s *Service) Replace(ctx context.Context, old *models.MediaFile, name string, r io.Reader, creds Credentials) (Result, error) {
	if err := s.verify(creds); err != nil {
		return Result{}, err
	}
	s.Release(ctx, old)
	return s.store(ctx, name, r)
}

// ReleaseAll releases every blob referenced by files, for example the media
// of a deleted page. It returns how many deletes failed and were queued.
func (s *Service) ReleaseAll(ctx context.Context, files []models.MediaFile) int {
	failed := 0
	seen := make(map[string]bool, len(files))
	for i := range files {
		f := &files[i]
		if !f.Deletable() || seen[f.FileID] {
			continue
		}
		seen[f.FileID] = true
		if !s.Release(ctx, f) {
			failed++
		}
	}
	return failed
}
