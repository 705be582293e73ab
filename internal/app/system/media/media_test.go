package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratapage/internal/app/store/mediadeletions"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// pngBytes is a PNG signature followed by padding.
func pngBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return b
}

var mp4Bytes = append([]byte("\x00\x00\x00\x20ftypisom\x00\x00\x02\x00isomiso2avc1mp41"), make([]byte, 64)...)

type memBlobs struct {
	mu        sync.Mutex
	files     map[string][]byte
	types     map[string]string
	putErr    error
	deleteErr error
	deletes   []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{files: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, r io.Reader, opts *storage.PutOptions) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = b
	if opts != nil {
		m.types[path] = opts.ContentType
	}
	return nil
}

func (m *memBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, path)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, path)
	return nil
}

func (m *memBlobs) URL(path string) string { return "https://cdn.test/" + path }

type memQueue struct {
	mu      sync.Mutex
	pending map[primitive.ObjectID]*mediadeletions.Pending
}

func newMemQueue() *memQueue {
	return &memQueue{pending: map[primitive.ObjectID]*mediadeletions.Pending{}}
}

func (q *memQueue) Enqueue(_ context.Context, fileID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pending {
		if p.FileID == fileID {
			p.LastError = cause.Error()
			return nil
		}
	}
	id := primitive.NewObjectID()
	q.pending[id] = &mediadeletions.Pending{ID: id, FileID: fileID, LastError: cause.Error()}
	return nil
}

func (q *memQueue) Due(_ context.Context, now time.Time, _ int64) ([]mediadeletions.Pending, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []mediadeletions.Pending
	for _, p := range q.pending {
		if !p.NextAttemptAt.After(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (q *memQueue) MarkFailed(_ context.Context, id primitive.ObjectID, cause error, next time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := q.pending[id]
	p.Attempts++
	p.LastError = cause.Error()
	p.NextAttemptAt = next
	return nil
}

func (q *memQueue) Remove(_ context.Context, id primitive.ObjectID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	return nil
}

func newService(t *testing.T, blobs Blobs, q RetryQueue, cfg Config) *Service {
	t.Helper()
	if cfg.SigningKey == nil {
		cfg.SigningKey = testKey
	}
	s, err := New(blobs, q, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func mustAuth(t *testing.T, s *Service) Credentials {
	t.Helper()
	c, err := s.UploadAuth()
	if err != nil {
		t.Fatalf("UploadAuth() error = %v", err)
	}
	return c
}

func TestNew_RejectsShortKey(t *testing.T) {
	if _, err := New(newMemBlobs(), nil, Config{SigningKey: []byte("short")}, nil); err == nil {
		t.Error("New() accepted a short signing key")
	}
}

func TestUploadAuth(t *testing.T) {
	s := newService(t, newMemBlobs(), nil, Config{PublicKey: "pk_test", CredentialTTL: 10 * time.Minute})
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	c := mustAuth(t, s)
	if c.Token == "" || c.Signature == "" || c.PublicKey != "pk_test" {
		t.Errorf("credentials = %+v", c)
	}
	if c.Expire != now.Add(10*time.Minute).Unix() {
		t.Errorf("Expire = %d", c.Expire)
	}
	if other := mustAuth(t, s); other.Token == c.Token {
		t.Error("tokens repeat")
	}
}

func TestUpload(t *testing.T) {
	blobs := newMemBlobs()
	s := newService(t, blobs, nil, Config{})
	s.now = func() time.Time { return time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC) }

	res, err := s.Upload(context.Background(), "Photo.PNG", bytes.NewReader(pngBytes(5000)), mustAuth(t, s))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(res.FileID, "media/2025/07/") || !strings.HasSuffix(res.FileID, ".png") {
		t.Errorf("FileID = %q", res.FileID)
	}
	if res.URL != "https://cdn.test/"+res.FileID || res.ThumbnailURL != res.URL {
		t.Errorf("URLs = %q / %q", res.URL, res.ThumbnailURL)
	}
	if res.ContentType != "image/png" || res.Size != 5000 {
		t.Errorf("type/size = %q / %d", res.ContentType, res.Size)
	}
	if got := len(blobs.files[res.FileID]); got != 5000 {
		t.Errorf("stored %d bytes, want 5000", got)
	}
	if blobs.types[res.FileID] != "image/png" {
		t.Errorf("stored content type = %q", blobs.types[res.FileID])
	}

	mf := res.MediaFile()
	if mf.File != res.URL || mf.FileID != res.FileID || !mf.HasFile() || !mf.Deletable() {
		t.Errorf("MediaFile() = %+v", mf)
	}
}

func TestUpload_Video(t *testing.T) {
	s := newService(t, newMemBlobs(), nil, Config{})
	res, err := s.Upload(context.Background(), "clip.mp4", bytes.NewReader(mp4Bytes), mustAuth(t, s))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(res.ContentType, "video/") {
		t.Errorf("ContentType = %q", res.ContentType)
	}
}

func TestUpload_Rejections(t *testing.T) {
	blobs := newMemBlobs()
	s := newService(t, blobs, nil, Config{MaxUploadSize: 4096})
	ctx := context.Background()

	good := mustAuth(t, s)
	tampered := good
	tampered.Token = "someone-else"

	tests := []struct {
		name  string
		body  []byte
		creds Credentials
	}{
		{"no credentials", pngBytes(100), Credentials{}},
		{"tampered credentials", pngBytes(100), tampered},
		{"garbage signature", pngBytes(100), Credentials{Token: "t", Expire: 1, Signature: "nope"}},
		{"not media", []byte("just some text, not an image"), mustAuth(t, s)},
		{"empty file", nil, mustAuth(t, s)},
		{"too large", pngBytes(4097), mustAuth(t, s)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upload(ctx, "f.png", bytes.NewReader(tt.body), tt.creds)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Upload() error = %v, want ErrValidation", err)
			}
		})
	}
	if len(blobs.files) != 0 {
		t.Errorf("rejected uploads left %d blobs", len(blobs.files))
	}

	// At exactly the limit is fine.
	if _, err := s.Upload(ctx, "f.png", bytes.NewReader(pngBytes(4096)), mustAuth(t, s)); err != nil {
		t.Errorf("Upload(at limit) error = %v", err)
	}
}

func TestUpload_CredentialsAreSingleUse(t *testing.T) {
	s := newService(t, newMemBlobs(), nil, Config{})
	c := mustAuth(t, s)
	ctx := context.Background()

	if _, err := s.Upload(ctx, "a.png", bytes.NewReader(pngBytes(100)), c); err != nil {
		t.Fatalf("first Upload() error = %v", err)
	}
	if _, err := s.Upload(ctx, "a.png", bytes.NewReader(pngBytes(100)), c); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("reused credentials error = %v, want ErrValidation", err)
	}
}

func TestUpload_ExpiredCredentials(t *testing.T) {
	s := newService(t, newMemBlobs(), nil, Config{CredentialTTL: time.Minute})
	c := mustAuth(t, s)
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := s.Upload(context.Background(), "a.png", bytes.NewReader(pngBytes(100)), c); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Upload() error = %v, want ErrValidation", err)
	}
}

func TestUpload_StoreFailure(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("bucket unreachable")
	s := newService(t, blobs, nil, Config{})

	_, err := s.Upload(context.Background(), "a.png", bytes.NewReader(pngBytes(100)), mustAuth(t, s))
	if !errors.Is(err, apperr.ErrMediaOperation) {
		t.Errorf("Upload() error = %v, want ErrMediaOperation", err)
	}
}

func TestDelete(t *testing.T) {
	blobs := newMemBlobs()
	s := newService(t, blobs, nil, Config{})
	ctx := context.Background()

	if err := s.Delete(ctx, " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Delete(blank) error = %v", err)
	}
	for _, bad := range []string{"uploads/x.png", "media/../secret", "media//x.png"} {
		if err := s.Delete(ctx, bad); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Delete(%q) error = %v, want ErrValidation", bad, err)
		}
	}
	if err := s.Delete(ctx, "media/x.png"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	blobs.deleteErr = errors.New("403")
	if err := s.Delete(ctx, "media/x.png"); !errors.Is(err, apperr.ErrMediaOperation) {
		t.Errorf("Delete() error = %v, want ErrMediaOperation", err)
	}
}

func TestReplace_DeleteFailureDoesNotBlockUpload(t *testing.T) {
	blobs := newMemBlobs()
	blobs.deleteErr = errors.New("media store down")
	q := newMemQueue()
	s := newService(t, blobs, q, Config{})

	old := &models.MediaFile{File: "https://cdn.test/media/old.png", FileID: "media/old.png"}
	res, err := s.Replace(context.Background(), old, "new.png", bytes.NewReader(pngBytes(200)), mustAuth(t, s))
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if res.FileID == old.FileID || blobs.files[res.FileID] == nil {
		t.Errorf("new blob not stored: %+v", res)
	}
	if len(q.pending) != 1 {
		t.Fatalf("queued %d deletions, want 1", len(q.pending))
	}
	for _, p := range q.pending {
		if p.FileID != old.FileID {
			t.Errorf("queued %q", p.FileID)
		}
	}
}

func TestReplace_BadCredentialsKeepOldBlob(t *testing.T) {
	blobs := newMemBlobs()
	s := newService(t, blobs, nil, Config{})
	old := &models.MediaFile{FileID: "media/old.png"}

	_, err := s.Replace(context.Background(), old, "new.png", bytes.NewReader(pngBytes(200)), Credentials{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(blobs.deletes) != 0 {
		t.Errorf("old blob deleted despite rejected upload: %v", blobs.deletes)
	}
}

func TestReplace_NoOldMedia(t *testing.T) {
	blobs := newMemBlobs()
	s := newService(t, blobs, nil, Config{})
	if _, err := s.Replace(context.Background(), nil, "a.png", bytes.NewReader(pngBytes(100)), mustAuth(t, s)); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if len(blobs.deletes) != 0 {
		t.Errorf("deletes = %v", blobs.deletes)
	}
}

func TestReleaseAll(t *testing.T) {
	blobs := newMemBlobs()
	q := newMemQueue()
	s := newService(t, blobs, q, Config{})

	page := models.Page{Sections: []models.Section{
		{ID: "a", Type: models.SectionHeaderBanner, Data: &models.HeaderBanner{Image: &models.MediaFile{FileID: "media/a.png"}}},
		{ID: "b", Type: models.SectionGridLayout, Data: &models.GridLayout{Items: []models.GridItem{
			{ID: "1", Image: &models.MediaFile{FileID: "media/b.png"}},
			{ID: "2", Image: &models.MediaFile{FileID: "media/a.png"}},
			{ID: "3"},
		}}},
	}}
	if failed := s.ReleaseAll(context.Background(), page.MediaFiles()); failed != 0 {
		t.Errorf("failed = %d", failed)
	}
	if len(blobs.deletes) != 2 {
		t.Errorf("deletes = %v, want each blob once", blobs.deletes)
	}

	blobs.deleteErr = errors.New("down")
	if failed := s.ReleaseAll(context.Background(), page.MediaFiles()); failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	if len(q.pending) != 2 {
		t.Errorf("queued = %d, want 2", len(q.pending))
	}
}

func TestRetryDeletes(t *testing.T) {
	blobs := newMemBlobs()
	q := newMemQueue()
	s := newService(t, blobs, q, Config{})
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	q.Enqueue(ctx, "media/ok.png", errors.New("boom"))
	stats, err := s.RetryDeletes(ctx, q)
	if err != nil || stats.Deleted != 1 || len(q.pending) != 0 {
		t.Fatalf("RetryDeletes() = %+v, %v; pending %d", stats, err, len(q.pending))
	}

	blobs.deleteErr = errors.New("still down")
	q.Enqueue(ctx, "media/stuck.png", errors.New("boom"))
	stats, _ = s.RetryDeletes(ctx, q)
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, p := range q.pending {
		if p.Attempts != 1 || !p.NextAttemptAt.Equal(now.Add(RetryDelay(1))) {
			t.Errorf("pending = %+v", p)
		}
	}

	// Not due yet: nothing happens.
	if stats, _ := s.RetryDeletes(ctx, q); stats != (RetryStats{}) {
		t.Errorf("early retry = %+v", stats)
	}

	for _, p := range q.pending {
		p.Attempts = MaxDeleteAttempts - 1
		p.NextAttemptAt = now
	}
	stats, _ = s.RetryDeletes(ctx, q)
	if stats.Abandoned != 1 || len(q.pending) != 0 {
		t.Errorf("stats = %+v, pending = %d", stats, len(q.pending))
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{20, 6 * time.Hour},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempts); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestService_LocalStorage(t *testing.T) {
	local, err := storage.NewLocal(storage.LocalConfig{BasePath: t.TempDir(), BaseURL: "/files"})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	s := newService(t, local, nil, Config{})
	ctx := context.Background()

	res, err := s.Upload(ctx, "a.png", bytes.NewReader(pngBytes(1024)), mustAuth(t, s))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.Contains(res.URL, res.FileID) {
		t.Errorf("URL %q does not reference %q", res.URL, res.FileID)
	}
	if err := s.Delete(ctx, res.FileID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}
