package services

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/picker"
	"github.com/readtheplaque/plaqued/storage"
)

// MockPlaqueStore is an in-memory PlaqueStore for tests.
type MockPlaqueStore struct {
	plaques  map[string]*models.Plaque // key scope+"/"+slug
	featured map[string]string
	deleted  []string
}

func NewMockPlaqueStore() *MockPlaqueStore {
	return &MockPlaqueStore{
		plaques:  make(map[string]*models.Plaque),
		featured: make(map[string]string),
	}
}

func (m *MockPlaqueStore) key(scope, slug string) string { return scope + "/" + slug }

func (m *MockPlaqueStore) Store(p *models.Plaque) error {
	k := m.key(p.Scope, p.Slug)
	if _, ok := m.plaques[k]; ok {
		return storage.ErrSlugExists
	}
	cp := *p
	m.plaques[k] = &cp
	return nil
}

func (m *MockPlaqueStore) Update(p *models.Plaque) error {
	cp := *p
	m.plaques[m.key(p.Scope, p.Slug)] = &cp
	return nil
}

func (m *MockPlaqueStore) GetBySlug(scope, slug string) (*models.Plaque, error) {
	p, ok := m.plaques[m.key(scope, slug)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockPlaqueStore) Delete(scope, slug string) error {
	delete(m.plaques, m.key(scope, slug))
	m.deleted = append(m.deleted, slug)
	return nil
}

func (m *MockPlaqueStore) CountSlug(scope, slug string) (int, error) {
	if _, ok := m.plaques[m.key(scope, slug)]; ok {
		return 1, nil
	}
	return 0, nil
}

func (m *MockPlaqueStore) approved(scope string) []*models.Plaque {
	var out []*models.Plaque
	for _, p := range m.plaques {
		if p.Scope == scope && p.Approved {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out
}

func (m *MockPlaqueStore) CountApproved(scope string) (int, error) {
	return len(m.approved(scope)), nil
}

func (m *MockPlaqueStore) EarliestApproved(scope string) (*models.Plaque, error) {
	a := m.approved(scope)
	if len(a) == 0 {
		return nil, nil
	}
	return a[0], nil
}

func (m *MockPlaqueStore) LatestApproved(scope string) (*models.Plaque, error) {
	a := m.approved(scope)
	if len(a) == 0 {
		return nil, nil
	}
	return a[len(a)-1], nil
}

func (m *MockPlaqueStore) FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error) {
	for _, p := range m.approved(scope) {
		if !p.CreatedOn.Before(t) {
			return p, nil
		}
	}
	return nil, nil
}

func (m *MockPlaqueStore) ApprovedAtOffset(scope string, offset int) (*models.Plaque, error) {
	a := m.approved(scope)
	if offset < 0 || offset >= len(a) {
		return nil, nil
	}
	return a[offset], nil
}

func (m *MockPlaqueStore) Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]storage.NearbyPlaque, error) {
	return nil, nil
}

func (m *MockPlaqueStore) ListApproved(scope string, limit int, cursor string) ([]*models.Plaque, string, error) {
	a := m.approved(scope)
	// newest first, single page for tests
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
	return a, "", nil
}

func (m *MockPlaqueStore) ListApprovedSince(scope string, t time.Time) ([]*models.Plaque, error) {
	var out []*models.Plaque
	for _, p := range m.approved(scope) {
		if p.CreatedOn.After(t) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockPlaqueStore) ListPending(scope string, limit int) ([]*models.Plaque, error) {
	var out []*models.Plaque
	for _, p := range m.plaques {
		if p.Scope == scope && !p.Approved {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockPlaqueStore) Search(scope, term string, approvedOnly bool) ([]*models.Plaque, error) {
	term = strings.ToLower(term)
	var out []*models.Plaque
	for _, p := range m.plaques {
		if p.Scope != scope || (approvedOnly && !p.Approved) {
			continue
		}
		hay := strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Tags, " "))
		if strings.Contains(hay, term) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockPlaqueStore) SetFeatured(scope, slug string) error {
	m.featured[scope] = slug
	return nil
}

func (m *MockPlaqueStore) GetFeatured(scope string) (*models.Plaque, error) {
	slug, ok := m.featured[scope]
	if !ok {
		return nil, nil
	}
	return m.GetBySlug(scope, slug)
}

func (m *MockPlaqueStore) Close() error { return nil }

// MockImageStore records puts without touching disk.
type MockImageStore struct {
	puts    []string
	deletes []string
}

func (m *MockImageStore) Put(name string, data []byte, contentType string) (string, string, error) {
	m.puts = append(m.puts, name)
	return "20150601/" + name, "https://img.example.com/20150601/" + name, nil
}

func (m *MockImageStore) Delete(key string) error {
	m.deletes = append(m.deletes, key)
	return nil
}

func newTestService(store *MockPlaqueStore) (*PlaqueService, *MockImageStore) {
	images := &MockImageStore{}
	bounds := cache.NewBoundsCache(cache.NewMemoryCache(), time.Hour)
	cfg := &config.Config{Scope: "v", BaseURL: "https://plaques.example.com"}
	pk := picker.New(store, bounds)
	return NewPlaqueService(store, images, pk, bounds, cfg), images
}

func TestSubmitAssignsSlugAndStoresPending(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, images := newTestService(store)

	resp, err := svc.Submit(SubmitRequest{
		Title:       "Lincoln's Desk",
		Description: "He sat here.",
		Lat:         39.8,
		Lng:         -89.6,
		Tags:        "Lincoln, History",
		ImageName:   "desk.jpg",
		ImageData:   []byte("jpegbytes"),
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Slug != "lincoln-s-desk" {
		t.Errorf("expected slug lincoln-s-desk, got %q", resp.Slug)
	}

	stored, _ := store.GetBySlug("v", "lincoln-s-desk")
	if stored == nil {
		t.Fatal("plaque not stored")
	}
	if stored.Approved {
		t.Error("new submissions must be pending")
	}
	if got, want := stored.Tags, []string{"lincoln", "history"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected tags %v, got %v", want, got)
	}
	if stored.Pic == "" || stored.ImgURL == "" {
		t.Errorf("expected image key and URL, got %q %q", stored.Pic, stored.ImgURL)
	}
	if len(images.puts) != 1 {
		t.Errorf("expected 1 image put, got %d", len(images.puts))
	}
}

func TestSubmitCollisionGetsCounterSuffix(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	first, err := svc.Submit(SubmitRequest{Title: "Old Mill"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Submit(SubmitRequest{Title: "Old Mill"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Slug != "old-mill" || second.Slug != "old-mill2" {
		t.Errorf("expected old-mill then old-mill2, got %q %q", first.Slug, second.Slug)
	}
}

func TestSubmitUnicodeTitleKeepsLetters(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	resp, err := svc.Submit(SubmitRequest{Title: "Café du Monde"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Slug != "café-du-monde" {
		t.Errorf("expected café-du-monde, got %q", resp.Slug)
	}

	resp, err = svc.Submit(SubmitRequest{Title: "東京駅"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Slug != "東京駅" {
		t.Errorf("expected 東京駅, got %q", resp.Slug)
	}
}

func TestSubmitTruncatesTitleOnRuneBoundary(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	long := strings.Repeat("é", models.MaxTitleLen+10)
	resp, err := svc.Submit(SubmitRequest{Title: long})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetBySlug("v", resp.Slug)
	if !utf8.ValidString(stored.Title) {
		t.Error("truncated title is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(stored.Title); n != models.MaxTitleLen {
		t.Errorf("expected %d runes, got %d", models.MaxTitleLen, n)
	}
}

func TestSubmitRejectsBadGPSRef(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	_, err := svc.Submit(SubmitRequest{
		Title:     "Golden Gate",
		GPSLatRef: "Q",
		GPSLat:    [3]string{"37/1", "49/1", "0/1"},
		GPSLngRef: "W",
		GPSLng:    [3]string{"122/1", "28/1", "0/1"},
	})
	if !errors.Is(err, ErrBadGPS) {
		t.Fatalf("expected ErrBadGPS, got %v", err)
	}
	if len(store.plaques) != 0 {
		t.Error("rejected submission must not be stored")
	}
}

func TestSubmitEXIFLocationFallback(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	resp, err := svc.Submit(SubmitRequest{
		Title:     "Golden Gate",
		GPSLatRef: "N",
		GPSLat:    [3]string{"37/1", "49/1", "0/1"},
		GPSLngRef: "W",
		GPSLng:    [3]string{"122/1", "28/1", "0/1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := store.GetBySlug("v", resp.Slug)
	wantLat := 37.0 + 49.0/60.0
	wantLng := -(122.0 + 28.0/60.0)
	if diff := stored.Location.Lat - wantLat; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected lat %v, got %v", wantLat, stored.Location.Lat)
	}
	if diff := stored.Location.Lng - wantLng; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected lng %v, got %v", wantLng, stored.Location.Lng)
	}
}

func TestEditKeepsSlugWhenTitleUnchanged(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	resp, _ := svc.Submit(SubmitRequest{Title: "Old Mill", Description: "before"})

	edited, err := svc.Edit(EditRequest{
		Slug:        resp.Slug,
		Title:       "Old Mill",
		Description: "after",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Slug != "old-mill" {
		t.Errorf("expected slug unchanged, got %q", edited.Slug)
	}
	if edited.Description != "after" {
		t.Errorf("expected updated description, got %q", edited.Description)
	}
}

func TestEditRenamesSlugWhenTitleChanges(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	resp, _ := svc.Submit(SubmitRequest{Title: "Old Mill"})

	edited, err := svc.Edit(EditRequest{Slug: resp.Slug, Title: "New Mill"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edited.Slug != "new-mill" {
		t.Errorf("expected new-mill, got %q", edited.Slug)
	}
	if old, _ := store.GetBySlug("v", "old-mill"); old != nil {
		t.Error("old slug should stop resolving")
	}
}

func TestApproveResetsCreatedOnAndInvalidatesBounds(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	resp, _ := svc.Submit(SubmitRequest{Title: "Old Mill"})
	submitted, _ := store.GetBySlug("v", resp.Slug)

	// warm the bounds cache with another approved plaque
	past := time.Now().Add(-24 * time.Hour)
	if err := store.Store(&models.Plaque{Slug: "seed", Scope: "v", Approved: true, CreatedOn: past, UpdatedOn: past}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Random(picker.TimeRange); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := svc.bounds.Get("v"); !ok {
		t.Fatal("expected bounds cached")
	}

	approved, err := svc.Approve(resp.Slug, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approved.Approved {
		t.Error("expected plaque approved")
	}
	if !approved.CreatedOn.After(submitted.CreatedOn) {
		t.Error("expected created_on reset to approval time")
	}
	if _, ok := svc.bounds.Get("v"); ok {
		t.Error("expected bounds cache invalidated on approval")
	}
}

func TestDeleteRemovesImage(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, images := newTestService(store)

	resp, _ := svc.Submit(SubmitRequest{
		Title:     "Old Mill",
		ImageName: "mill.jpg",
		ImageData: []byte("x"),
	})
	if err := svc.Delete(resp.Slug); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(images.deletes) != 1 {
		t.Errorf("expected image deleted, got %v", images.deletes)
	}
	if p, _ := store.GetBySlug("v", resp.Slug); p != nil {
		t.Error("expected plaque removed")
	}
}

func TestTaggedFiltersExactTag(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	now := time.Now()
	seed := []*models.Plaque{
		{Slug: "a", Scope: "v", Title: "A", Tags: []string{"war", "history"}, Approved: true, CreatedOn: now},
		{Slug: "b", Scope: "v", Title: "warble bird", Approved: true, CreatedOn: now},
	}
	for _, p := range seed {
		if err := store.Store(p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.Tagged("war")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Slug != "a" {
		t.Errorf("expected only plaque a, got %v", got)
	}
}

func TestAllGeoJSON(t *testing.T) {
	store := NewMockPlaqueStore()
	svc, _ := newTestService(store)

	now := time.Now()
	seed := []*models.Plaque{
		{Slug: "a", Scope: "v", Title: "A", Location: models.GeoPt{Lat: 37.8, Lng: -122.4}, Approved: true, CreatedOn: now},
		{Slug: "b", Scope: "v", Title: "B", Location: models.GeoPt{Lat: 51.5, Lng: -0.1}, Approved: true, CreatedOn: now},
	}
	for _, p := range seed {
		if err := store.Store(p); err != nil {
			t.Fatal(err)
		}
	}

	fc, err := svc.AllGeoJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc["type"] != "FeatureCollection" {
		t.Errorf("expected FeatureCollection, got %v", fc["type"])
	}
	if features := fc["features"].([]interface{}); len(features) != 2 {
		t.Errorf("expected 2 features, got %d", len(features))
	}
	bbox, ok := fc["bounding_box"].([][]float64)
	if !ok {
		t.Fatalf("expected bounding box, got %v", fc["bounding_box"])
	}
	want := [][]float64{{-122.4, 37.8}, {-0.1, 51.5}}
	for i := range want {
		if bbox[i][0] != want[i][0] || bbox[i][1] != want[i][1] {
			t.Errorf("bounding box corner %d = %v, want %v", i, bbox[i], want[i])
		}
	}
}

func TestDescriptionHTMLRendersMarkdown(t *testing.T) {
	svc, _ := newTestService(NewMockPlaqueStore())

	p := &models.Plaque{Slug: "a", Description: "Some *emphasis* here."}
	html := string(svc.DescriptionHTML(p))
	if !strings.Contains(html, "<em>emphasis</em>") {
		t.Errorf("expected rendered markdown, got %q", html)
	}

	// raw HTML from submitters stays escaped
	p.Description = `<script>alert(1)</script>`
	html = string(svc.DescriptionHTML(p))
	if strings.Contains(html, "<script>") {
		t.Errorf("expected script tag escaped, got %q", html)
	}
}
