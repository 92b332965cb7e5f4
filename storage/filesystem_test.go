package storage

import (
	"testing"
	"time"

	"github.com/readtheplaque/plaqued/models"
)

func newTestStore(t *testing.T) *FilesystemStore {
	t.Helper()
	fs, err := NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	return fs
}

func testPlaque(slug string, approved bool, createdOn time.Time) *models.Plaque {
	return &models.Plaque{
		Slug:        slug,
		Scope:       "public",
		Title:       "Plaque " + slug,
		Description: "desc " + slug,
		Location:    models.GeoPt{Lat: 37.0, Lng: -122.0},
		Approved:    approved,
		CreatedOn:   createdOn,
		UpdatedOn:   createdOn,
	}
}

func TestFilesystemStoreRoundTrip(t *testing.T) {
	fs := newTestStore(t)
	defer func() { _ = fs.Close() }()

	now := time.Now().Truncate(time.Second)
	p := testPlaque("old-mill", true, now)
	if err := fs.Store(p); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := fs.GetBySlug("public", "old-mill")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got == nil || got.Title != "Plaque old-mill" {
		t.Fatalf("GetBySlug = %+v", got)
	}

	if err := fs.Store(testPlaque("old-mill", true, now)); err != ErrSlugExists {
		t.Errorf("duplicate Store err = %v, want ErrSlugExists", err)
	}

	missing, err := fs.GetBySlug("public", "nope")
	if err != nil || missing != nil {
		t.Errorf("missing GetBySlug = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestFilesystemStoreSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore: %v", err)
	}
	now := time.Now().Truncate(time.Second)
	if err := fs.Store(testPlaque("keeper", true, now)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := fs.SetFeatured("public", "keeper"); err != nil {
		t.Fatalf("SetFeatured: %v", err)
	}
	_ = fs.Close()

	reloaded, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.GetBySlug("public", "keeper")
	if err != nil || got == nil {
		t.Fatalf("reloaded GetBySlug = (%v, %v)", got, err)
	}
	featured, err := reloaded.GetFeatured("public")
	if err != nil || featured == nil || featured.Slug != "keeper" {
		t.Fatalf("reloaded GetFeatured = (%v, %v)", featured, err)
	}
}

func TestFilesystemStoreCounts(t *testing.T) {
	fs := newTestStore(t)
	base := time.Date(2015, 9, 9, 0, 0, 0, 0, time.UTC)

	for i, slug := range []string{"a", "b", "c"} {
		if err := fs.Store(testPlaque(slug, true, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	if err := fs.Store(testPlaque("pending", false, base.Add(10*time.Hour))); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if n, _ := fs.CountSlug("public", "a"); n != 1 {
		t.Errorf("CountSlug(a) = %d", n)
	}
	if n, _ := fs.CountSlug("public", "zzz"); n != 0 {
		t.Errorf("CountSlug(zzz) = %d", n)
	}
	if n, _ := fs.CountApproved("public"); n != 3 {
		t.Errorf("CountApproved = %d", n)
	}
	if n, _ := fs.CountApproved("other"); n != 0 {
		t.Errorf("CountApproved(other) = %d", n)
	}
}

func TestFilesystemStoreBoundsAndOffset(t *testing.T) {
	fs := newTestStore(t)
	base := time.Date(2015, 9, 9, 0, 0, 0, 0, time.UTC)

	for i, slug := range []string{"first", "middle", "last"} {
		if err := fs.Store(testPlaque(slug, true, base.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	earliest, err := fs.EarliestApproved("public")
	if err != nil || earliest == nil || earliest.Slug != "first" {
		t.Errorf("EarliestApproved = (%v, %v)", earliest, err)
	}
	latest, err := fs.LatestApproved("public")
	if err != nil || latest == nil || latest.Slug != "last" {
		t.Errorf("LatestApproved = (%v, %v)", latest, err)
	}

	since, err := fs.FirstApprovedSince("public", base.Add(12*time.Hour))
	if err != nil || since == nil || since.Slug != "middle" {
		t.Errorf("FirstApprovedSince = (%v, %v)", since, err)
	}

	// on-or-after: a query at an exact created_on returns that plaque
	onBoundary, err := fs.FirstApprovedSince("public", base.Add(48*time.Hour))
	if err != nil || onBoundary == nil || onBoundary.Slug != "last" {
		t.Errorf("FirstApprovedSince(boundary) = (%v, %v)", onBoundary, err)
	}

	after, err := fs.FirstApprovedSince("public", base.Add(100*24*time.Hour))
	if err != nil || after != nil {
		t.Errorf("FirstApprovedSince(past end) = (%v, %v), want (nil, nil)", after, err)
	}

	for i, want := range []string{"first", "middle", "last"} {
		p, err := fs.ApprovedAtOffset("public", i)
		if err != nil || p == nil || p.Slug != want {
			t.Errorf("ApprovedAtOffset(%d) = (%v, %v), want %s", i, p, err, want)
		}
	}
	if p, _ := fs.ApprovedAtOffset("public", 3); p != nil {
		t.Errorf("ApprovedAtOffset(3) = %v, want nil", p)
	}

	empty, err := fs.EarliestApproved("empty-scope")
	if err != nil || empty != nil {
		t.Errorf("EarliestApproved(empty) = (%v, %v)", empty, err)
	}
}

func TestFilesystemStoreNearest(t *testing.T) {
	fs := newTestStore(t)
	now := time.Now()

	sf := testPlaque("sf", true, now)
	sf.Location = models.GeoPt{Lat: 37.7749, Lng: -122.4194}
	oakland := testPlaque("oakland", true, now.Add(time.Second))
	oakland.Location = models.GeoPt{Lat: 37.8044, Lng: -122.2712}
	la := testPlaque("la", true, now.Add(2*time.Second))
	la.Location = models.GeoPt{Lat: 34.0522, Lng: -118.2437}
	pendingNearby := testPlaque("pending", false, now.Add(3*time.Second))
	pendingNearby.Location = models.GeoPt{Lat: 37.7749, Lng: -122.4194}

	for _, p := range []*models.Plaque{sf, oakland, la, pendingNearby} {
		if err := fs.Store(p); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	// 100 km around SF: SF and Oakland, nearest first; LA excluded;
	// pending plaques never returned.
	got, err := fs.Nearest("public", 37.7749, -122.4194, 100000, 10)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Nearest returned %d plaques, want 2", len(got))
	}
	if got[0].Plaque.Slug != "sf" || got[1].Plaque.Slug != "oakland" {
		t.Errorf("Nearest order = %s, %s", got[0].Plaque.Slug, got[1].Plaque.Slug)
	}
	if got[0].DistanceMeters > 1 {
		t.Errorf("distance to self = %v", got[0].DistanceMeters)
	}

	// Middle of the Pacific: nothing within 100 km.
	none, err := fs.Nearest("public", 0, -150, 100000, 10)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Nearest(ocean) = %d plaques, want 0", len(none))
	}
}

func TestFilesystemStorePagination(t *testing.T) {
	fs := newTestStore(t)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	slugs := []string{"p0", "p1", "p2", "p3", "p4"}
	for i, slug := range slugs {
		if err := fs.Store(testPlaque(slug, true, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		page, next, err := fs.ListApproved("public", 2, cursor)
		if err != nil {
			t.Fatalf("ListApproved: %v", err)
		}
		for _, p := range page {
			seen = append(seen, p.Slug)
		}
		if next == "" {
			break
		}
		cursor = next
	}

	want := []string{"p4", "p3", "p2", "p1", "p0"} // newest first
	if len(seen) != len(want) {
		t.Fatalf("paged slugs = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("page order[%d] = %s, want %s", i, seen[i], want[i])
		}
	}

	if _, _, err := fs.ListApproved("public", 2, "not-a-cursor"); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestFilesystemStoreSearch(t *testing.T) {
	fs := newTestStore(t)
	now := time.Now()

	bridge := testPlaque("bridge", true, now)
	bridge.Title = "Golden Gate Bridge"
	tunnel := testPlaque("tunnel", false, now.Add(time.Second))
	tunnel.Description = "A bridge over troubled water"
	other := testPlaque("other", true, now.Add(2*time.Second))
	other.Tags = []string{"suspension bridge"}

	for _, p := range []*models.Plaque{bridge, tunnel, other} {
		if err := fs.Store(p); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	all, err := fs.Search("public", "bridge", false)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Search(all) = %d results, want 3", len(all))
	}

	approved, err := fs.Search("public", "bridge", true)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(approved) != 2 {
		t.Errorf("Search(approved) = %d results, want 2", len(approved))
	}
}

func TestFilesystemStoreFeatured(t *testing.T) {
	fs := newTestStore(t)

	none, err := fs.GetFeatured("public")
	if err != nil || none != nil {
		t.Errorf("GetFeatured(empty) = (%v, %v), want (nil, nil)", none, err)
	}

	if err := fs.Store(testPlaque("star", true, time.Now())); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := fs.SetFeatured("public", "star"); err != nil {
		t.Fatalf("SetFeatured: %v", err)
	}
	got, err := fs.GetFeatured("public")
	if err != nil || got == nil || got.Slug != "star" {
		t.Errorf("GetFeatured = (%v, %v)", got, err)
	}
}

func TestFilesystemStoreUpdate(t *testing.T) {
	fs := newTestStore(t)
	now := time.Now()

	p := testPlaque("editable", false, now)
	if err := fs.Store(p); err != nil {
		t.Fatalf("Store: %v", err)
	}
	p.Approved = true
	p.Title = "New Title"
	if err := fs.Update(p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := fs.GetBySlug("public", "editable")
	if err != nil || got == nil {
		t.Fatalf("GetBySlug: (%v, %v)", got, err)
	}
	if !got.Approved || got.Title != "New Title" {
		t.Errorf("update not applied: %+v", got)
	}
}
