package pageadmin

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	"github.com/dalemusser/stratapage/internal/app/catalog"
	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/stratapage/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const base = "/api/admin/pages"

type releaser struct {
	files []models.MediaFile
}

func (r *releaser) ReleaseAll(_ context.Context, files []models.MediaFile) int {
	r.files = append(r.files, files...)
	return 0
}

type recorder struct {
	events []invalidate.Event
}

func (r *recorder) Invalidate(_ context.Context, ev invalidate.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type fixture struct {
	router http.Handler
	store  *pagestore.Store
	media  *releaser
	inv    *recorder
}

// newFixture wires the handler the way the server does: section writes reach
// both the cache invalidator and the catalog.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := pagestore.New(db)
	inv := &recorder{}
	media := &releaser{}
	cat := catalog.New(store, inv, zap.NewNop())
	errs := errorsfeature.NewHandler(nil, errorsfeature.NewErrorLogger(zap.NewNop()))
	h := NewHandler(cat, store, media, invalidate.Multi{inv, cat}, errs, zap.NewNop())
	r := chi.NewRouter()
	r.Mount(base, Routes(h))
	return &fixture{router: r, store: store, media: media, inv: inv}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *testutil.ResponseRecorder {
	t.Helper()
	return testutil.Serve(f.router, testutil.NewJSONRequest(t, method, base+target, body))
}

func (f *fixture) create(t *testing.T, title, slug string) catalog.Summary {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/", map[string]string{"title": title, "slug": slug})
	rec.AssertStatus(t, http.StatusCreated)
	var s catalog.Summary
	if err := json.Unmarshal(rec.Notice(t).Data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return s
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "  About ", "/About/")
	if about.Slug != "about" || about.Title != "About" || about.IsPublished {
		t.Errorf("created = %+v", about)
	}
	f.create(t, "Contact", "contact")

	rec := f.do(t, http.MethodGet, "/", nil)
	rec.AssertStatus(t, http.StatusOK)
	var got struct {
		Pages []catalog.Summary `json:"pages"`
	}
	rec.DecodeJSON(t, &got)
	if len(got.Pages) != 2 || got.Pages[0].Slug != "contact" {
		t.Errorf("pages = %+v, want newest first", got.Pages)
	}
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	f.create(t, "About", "about")

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"duplicate slug", map[string]string{"title": "Other", "slug": "about"}, http.StatusConflict, "conflict"},
		{"missing title", map[string]string{"slug": "x"}, http.StatusBadRequest, "validation"},
		{"bad slug", map[string]string{"title": "X", "slug": "a b"}, http.StatusBadRequest, "validation"},
		{"malformed JSON", "{", http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/", tt.body)
			rec.AssertStatus(t, tt.status)
			if n := rec.Notice(t); n.OK || n.Kind != tt.kind {
				t.Errorf("notice = %+v", n)
			}
		})
	}
}

func TestUpdate_RenameInvalidatesBothSlugs(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	f.inv.events = nil

	rec := f.do(t, http.MethodPatch, "/"+about.ID.Hex(), map[string]string{"slug": "about-us"})
	rec.AssertStatus(t, http.StatusOK)

	if len(f.inv.events) != 1 {
		t.Fatalf("events = %+v", f.inv.events)
	}
	slugs := f.inv.events[0].Slugs
	if len(slugs) != 2 || slugs[0] != "about" || slugs[1] != "about-us" {
		t.Errorf("slugs = %v", slugs)
	}
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	f.create(t, "Contact", "contact")

	tests := []struct {
		name   string
		target string
		body   any
		status int
	}{
		{"empty patch", "/" + about.ID.Hex(), map[string]string{}, http.StatusBadRequest},
		{"slug taken", "/" + about.ID.Hex(), map[string]string{"slug": "contact"}, http.StatusConflict},
		{"unknown id", "/" + primitive.NewObjectID().Hex(), map[string]string{"title": "X"}, http.StatusNotFound},
		{"malformed id", "/zzz", map[string]string{"title": "X"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodPatch, tt.target, tt.body).AssertStatus(t, tt.status)
		})
	}
}

func TestTogglePublish(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	target := "/" + about.ID.Hex() + "/publish"

	rec := f.do(t, http.MethodPost, target, nil)
	rec.AssertStatus(t, http.StatusOK)
	if n := rec.Notice(t); n.Message != "Page published" {
		t.Errorf("message = %q", n.Message)
	}
	rec = f.do(t, http.MethodPost, target, nil)
	if n := rec.Notice(t); n.Message != "Page unpublished" {
		t.Errorf("message = %q", n.Message)
	}
}

func TestReplaceSectionsAndGet(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	target := "/" + about.ID.Hex()

	body := `{"sections":[
		{"id":"s2","type":"content-section","order":7,"data":{"title":"Story","content":"<p>Hi</p><script>x()</script>"}},
		{"id":"s1","type":"header-banner","order":3,"data":{"title":"Welcome"}}
	]}`
	rec := f.do(t, http.MethodPut, target+"/sections", body)
	rec.AssertStatus(t, http.StatusOK)

	rec = f.do(t, http.MethodGet, target, nil)
	rec.AssertStatus(t, http.StatusOK)
	var page models.Page
	rec.DecodeJSON(t, &page)
	if len(page.Sections) != 2 {
		t.Fatalf("sections = %d", len(page.Sections))
	}
	if page.Sections[0].ID != "s1" || page.Sections[0].Order != 0 || page.Sections[1].Order != 1 {
		t.Errorf("sections not ordered and renumbered: %+v", page.Sections)
	}
	cb, ok := page.Sections[1].Data.(*models.ContentBlock)
	if !ok || cb.Content != "<p>Hi</p>" {
		t.Errorf("content = %+v", page.Sections[1].Data)
	}
	last := f.inv.events[len(f.inv.events)-1]
	if len(last.Slugs) != 1 || last.Slugs[0] != "about" {
		t.Errorf("last event = %+v", last)
	}
}

func TestReplaceSections_RefreshesList(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")

	body := `{"sections":[{"id":"s1","type":"header-banner","order":0,"data":{"title":"Welcome"}}]}`
	f.do(t, http.MethodPut, "/"+about.ID.Hex()+"/sections", body).AssertStatus(t, http.StatusOK)

	rec := f.do(t, http.MethodGet, "/", nil)
	rec.AssertStatus(t, http.StatusOK)
	var got struct {
		Pages []catalog.Summary `json:"pages"`
	}
	rec.DecodeJSON(t, &got)
	if len(got.Pages) != 1 || got.Pages[0].SectionCount != 1 {
		t.Errorf("pages after section replace = %+v, want one page with 1 section", got.Pages)
	}
}

func TestReplaceSections_Rejects(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	target := "/" + about.ID.Hex() + "/sections"

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"sections":[{"id":"a","type":"carousel","order":0,"data":{}}]}`},
		{"duplicate ids", `{"sections":[{"id":"a","type":"content-section","order":0,"data":{}},{"id":"a","type":"content-section","order":1,"data":{}}]}`},
		{"bad grid columns", `{"sections":[{"id":"a","type":"grid-layout","order":0,"data":{"columns":7,"items":[]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodPut, target, tt.body).AssertStatus(t, http.StatusBadRequest)
		})
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	page, err := f.store.GetByID(ctx, about.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Sections) != 0 {
		t.Errorf("rejected replace was stored: %+v", page.Sections)
	}
}

func TestDelete_ReleasesMedia(t *testing.T) {
	f := newFixture(t)
	about := f.create(t, "About", "about")
	target := "/" + about.ID.Hex()

	body := `{"sections":[
		{"id":"s1","type":"header-banner","order":0,"data":{"image":{"file":"/files/media/a.png","fileId":"media/a.png"}}},
		{"id":"s2","type":"bottom-media","order":1,"data":{"media":{"file":"/files/media/v.mp4","fileId":"media/v.mp4"},"type":"video"}}
	]}`
	f.do(t, http.MethodPut, target+"/sections", body).AssertStatus(t, http.StatusOK)

	rec := f.do(t, http.MethodDelete, target, nil)
	rec.AssertStatus(t, http.StatusOK)
	if len(f.media.files) != 2 {
		t.Errorf("released = %+v, want both blobs", f.media.files)
	}

	f.do(t, http.MethodGet, target, nil).AssertStatus(t, http.StatusNotFound)
	f.do(t, http.MethodDelete, target, nil).AssertStatus(t, http.StatusNotFound)
}

func TestPrepareSections_DoesNotReorderInput(t *testing.T) {
	in := []models.Section{
		{ID: "b", Type: models.SectionContent, Order: 5, Data: &models.ContentBlock{}},
		{ID: "a", Type: models.SectionContent, Order: 1, Data: &models.ContentBlock{}},
	}
	out := PrepareSections(in)
	if in[0].ID != "b" || in[0].Order != 5 {
		t.Error("input slice modified")
	}
	if out[0].ID != "a" || out[0].Order != 0 || out[1].Order != 1 {
		t.Errorf("out = %+v", out)
	}
}
