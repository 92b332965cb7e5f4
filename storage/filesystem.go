package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/utils"
)

// FilesystemStore implements PlaqueStore on local JSON files, one per
// plaque, with an in-memory index for queries. Suitable for server
// mode and tests; queries never touch the disk after startup.
type FilesystemStore struct {
	dataDir  string
	mu       sync.Mutex
	plaques  map[string]*models.Plaque        // scope/slug -> plaque
	featured map[string]models.FeaturedPlaque // scope -> newest featured
}

// NewFilesystemStore opens (and creates if needed) dataDir and loads
// the existing plaque files into the index.
func NewFilesystemStore(dataDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	fs := &FilesystemStore{
		dataDir:  dataDir,
		plaques:  make(map[string]*models.Plaque),
		featured: make(map[string]models.FeaturedPlaque),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func key(scope, slug string) string { return scope + "/" + slug }

func (fs *FilesystemStore) load() error {
	scopes, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return err
	}
	for _, scopeDir := range scopes {
		if !scopeDir.IsDir() {
			continue
		}
		scope := scopeDir.Name()
		entries, err := os.ReadDir(filepath.Join(fs.dataDir, scope))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			path := filepath.Join(fs.dataDir, scope, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if e.Name() == "_featured.json" {
				var f models.FeaturedPlaque
				if err := json.Unmarshal(data, &f); err != nil {
					log.Printf("[ERROR] FS load: bad featured file %s: %v", path, err)
					continue
				}
				fs.featured[scope] = f
				continue
			}
			var p models.Plaque
			if err := json.Unmarshal(data, &p); err != nil {
				log.Printf("[ERROR] FS load: bad plaque file %s: %v", path, err)
				continue
			}
			fs.plaques[key(p.Scope, p.Slug)] = &p
		}
	}
	return nil
}

func (fs *FilesystemStore) write(p *models.Plaque) error {
	dir := filepath.Join(fs.dataDir, p.Scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, p.Slug+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[ERROR] FS write: failed to write %s: %v", path, err)
		return err
	}
	return nil
}

// Store inserts a new plaque.
func (fs *FilesystemStore) Store(p *models.Plaque) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	k := key(p.Scope, p.Slug)
	if _, exists := fs.plaques[k]; exists {
		return ErrSlugExists
	}
	if err := fs.write(p); err != nil {
		return err
	}
	cp := *p
	fs.plaques[k] = &cp
	return nil
}

// Update overwrites an existing plaque.
func (fs *FilesystemStore) Update(p *models.Plaque) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.write(p); err != nil {
		return err
	}
	cp := *p
	fs.plaques[key(p.Scope, p.Slug)] = &cp
	return nil
}

// GetBySlug retrieves a plaque, or (nil, nil) when absent.
func (fs *FilesystemStore) GetBySlug(scope, slug string) (*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p, ok := fs.plaques[key(scope, slug)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Delete removes a plaque and its file.
func (fs *FilesystemStore) Delete(scope, slug string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.plaques, key(scope, slug))
	_ = os.Remove(filepath.Join(fs.dataDir, scope, slug+".json"))
	return nil
}

// CountSlug reports how many plaques in scope hold the slug.
func (fs *FilesystemStore) CountSlug(scope, slug string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.plaques[key(scope, slug)]; ok {
		return 1, nil
	}
	return 0, nil
}

func (fs *FilesystemStore) approved(scope string) []*models.Plaque {
	var out []*models.Plaque
	for _, p := range fs.plaques {
		if p.Scope == scope && p.Approved {
			out = append(out, p)
		}
	}
	return out
}

// byCreatedAsc orders plaques oldest first, slug as tiebreaker so the
// ordering is total.
func byCreatedAsc(plaques []*models.Plaque) {
	sort.Slice(plaques, func(i, j int) bool {
		if plaques[i].CreatedOn.Equal(plaques[j].CreatedOn) {
			return plaques[i].Slug < plaques[j].Slug
		}
		return plaques[i].CreatedOn.Before(plaques[j].CreatedOn)
	})
}

// CountApproved reports the number of approved plaques in scope.
func (fs *FilesystemStore) CountApproved(scope string) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.approved(scope)), nil
}

// EarliestApproved returns the oldest approved plaque.
func (fs *FilesystemStore) EarliestApproved(scope string) (*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	plaques := fs.approved(scope)
	if len(plaques) == 0 {
		return nil, nil
	}
	byCreatedAsc(plaques)
	cp := *plaques[0]
	return &cp, nil
}

// LatestApproved returns the newest approved plaque.
func (fs *FilesystemStore) LatestApproved(scope string) (*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	plaques := fs.approved(scope)
	if len(plaques) == 0 {
		return nil, nil
	}
	byCreatedAsc(plaques)
	cp := *plaques[len(plaques)-1]
	return &cp, nil
}

// FirstApprovedSince returns the first approved plaque with
// created_on on or after t.
func (fs *FilesystemStore) FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	plaques := fs.approved(scope)
	byCreatedAsc(plaques)
	for _, p := range plaques {
		if !p.CreatedOn.Before(t) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// ApprovedAtOffset returns the approved plaque at offset in ascending
// created_on order.
func (fs *FilesystemStore) ApprovedAtOffset(scope string, offset int) (*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	plaques := fs.approved(scope)
	if offset < 0 || offset >= len(plaques) {
		return nil, nil
	}
	byCreatedAsc(plaques)
	cp := *plaques[offset]
	return &cp, nil
}

// Nearest returns approved plaques within radiusMeters, nearest first.
func (fs *FilesystemStore) Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]NearbyPlaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []NearbyPlaque
	for _, p := range fs.approved(scope) {
		d := utils.HaversineMeters(lat, lng, p.Location.Lat, p.Location.Lng)
		if d <= radiusMeters {
			cp := *p
			out = append(out, NearbyPlaque{Plaque: &cp, DistanceMeters: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListApproved pages through approved plaques, newest first.
func (fs *FilesystemStore) ListApproved(scope string, limit int, cursor string) ([]*models.Plaque, string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	plaques := fs.approved(scope)
	byCreatedAsc(plaques)
	// newest first
	for i, j := 0, len(plaques)-1; i < j; i, j = i+1, j-1 {
		plaques[i], plaques[j] = plaques[j], plaques[i]
	}

	start := 0
	if cursor != "" {
		after, slug, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		for i, p := range plaques {
			if p.CreatedOn.Equal(after) && p.Slug == slug {
				start = i + 1
				break
			}
			if p.CreatedOn.Before(after) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if limit <= 0 || end > len(plaques) {
		end = len(plaques)
	}
	page := make([]*models.Plaque, 0, end-start)
	for _, p := range plaques[start:end] {
		cp := *p
		page = append(page, &cp)
	}
	next := ""
	if end < len(plaques) && len(page) > 0 {
		last := page[len(page)-1]
		next = EncodeCursor(last.CreatedOn, last.Slug)
	}
	return page, next, nil
}

// ListApprovedSince returns approved plaques created after t, newest first.
func (fs *FilesystemStore) ListApprovedSince(scope string, t time.Time) ([]*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []*models.Plaque
	for _, p := range fs.approved(scope) {
		if p.CreatedOn.After(t) {
			cp := *p
			out = append(out, &cp)
		}
	}
	byCreatedAsc(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListPending returns up to limit unapproved plaques, newest first.
func (fs *FilesystemStore) ListPending(scope string, limit int) ([]*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []*models.Plaque
	for _, p := range fs.plaques {
		if p.Scope == scope && !p.Approved {
			cp := *p
			out = append(out, &cp)
		}
	}
	byCreatedAsc(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search does a case-insensitive substring match over title,
// description, and tags.
func (fs *FilesystemStore) Search(scope, term string, approvedOnly bool) ([]*models.Plaque, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	term = strings.ToLower(term)
	var out []*models.Plaque
	for _, p := range fs.plaques {
		if p.Scope != scope {
			continue
		}
		if approvedOnly && !p.Approved {
			continue
		}
		if matchPlaque(p, term) {
			cp := *p
			out = append(out, &cp)
		}
	}
	byCreatedAsc(out)
	return out, nil
}

func matchPlaque(p *models.Plaque, lowerTerm string) bool {
	if strings.Contains(strings.ToLower(p.Title), lowerTerm) ||
		strings.Contains(strings.ToLower(p.Description), lowerTerm) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), lowerTerm) {
			return true
		}
	}
	return false
}

// SetFeatured marks the plaque as featured.
func (fs *FilesystemStore) SetFeatured(scope, slug string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := models.FeaturedPlaque{Slug: slug, CreatedOn: time.Now()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Join(fs.dataDir, scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "_featured.json"), data, 0o644); err != nil {
		return err
	}
	fs.featured[scope] = f
	return nil
}

// GetFeatured returns the featured plaque, or (nil, nil).
func (fs *FilesystemStore) GetFeatured(scope string) (*models.Plaque, error) {
	fs.mu.Lock()
	f, ok := fs.featured[scope]
	fs.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return fs.GetBySlug(scope, f.Slug)
}

// Close is a no-op for the filesystem store.
func (fs *FilesystemStore) Close() error {
	return nil
}
