package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/utils"
)

// SQLiteStore implements PlaqueStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plaques (
	scope       TEXT NOT NULL,
	slug        TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	lat         REAL NOT NULL,
	lng         REAL NOT NULL,
	pic         TEXT NOT NULL DEFAULT '',
	img_url     TEXT NOT NULL DEFAULT '',
	img_rot     INTEGER NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	approved    INTEGER NOT NULL DEFAULT 0,
	created_on  INTEGER NOT NULL,
	created_by  TEXT NOT NULL DEFAULT '',
	updated_on  INTEGER NOT NULL,
	updated_by  TEXT NOT NULL DEFAULT '',
	old_site_id INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (scope, slug)
);
CREATE INDEX IF NOT EXISTS idx_plaques_approved_created
	ON plaques (scope, approved, created_on);
CREATE INDEX IF NOT EXISTS idx_plaques_latlng
	ON plaques (lat, lng);
CREATE TABLE IF NOT EXISTS featured (
	scope      TEXT NOT NULL,
	slug       TEXT NOT NULL,
	created_on INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_featured_scope_created
	ON featured (scope, created_on);
`

// NewSQLiteStore opens or creates the database at path and runs the
// schema migration. WAL mode keeps concurrent reads cheap.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const plaqueColumns = `scope, slug, title, description, lat, lng, pic, img_url,
	img_rot, tags, approved, created_on, created_by, updated_on, updated_by, old_site_id`

func scanPlaque(row interface{ Scan(...interface{}) error }) (*models.Plaque, error) {
	var p models.Plaque
	var tagsJSON string
	var approved int
	var createdNanos, updatedNanos int64
	err := row.Scan(&p.Scope, &p.Slug, &p.Title, &p.Description,
		&p.Location.Lat, &p.Location.Lng, &p.Pic, &p.ImgURL, &p.ImgRot,
		&tagsJSON, &approved, &createdNanos, &p.CreatedBy, &updatedNanos,
		&p.UpdatedBy, &p.OldSiteID)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, fmt.Errorf("bad tags for %s/%s: %w", p.Scope, p.Slug, err)
	}
	p.Approved = approved != 0
	p.CreatedOn = time.Unix(0, createdNanos)
	p.UpdatedOn = time.Unix(0, updatedNanos)
	return &p, nil
}

func plaqueArgs(p *models.Plaque) ([]interface{}, error) {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	approved := 0
	if p.Approved {
		approved = 1
	}
	return []interface{}{
		p.Scope, p.Slug, p.Title, p.Description,
		p.Location.Lat, p.Location.Lng, p.Pic, p.ImgURL, p.ImgRot,
		string(tagsJSON), approved, p.CreatedOn.UnixNano(), p.CreatedBy,
		p.UpdatedOn.UnixNano(), p.UpdatedBy, p.OldSiteID,
	}, nil
}

// Store inserts a new plaque.
func (s *SQLiteStore) Store(p *models.Plaque) error {
	args, err := plaqueArgs(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO plaques (`+plaqueColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrSlugExists
	}
	return err
}

// Update overwrites an existing plaque.
func (s *SQLiteStore) Update(p *models.Plaque) error {
	args, err := plaqueArgs(p)
	if err != nil {
		return err
	}
	// scope and slug move to the WHERE clause
	set := args[2:]
	set = append(set, p.Scope, p.Slug)
	_, err = s.db.Exec(`
UPDATE plaques SET title = ?, description = ?, lat = ?, lng = ?, pic = ?,
	img_url = ?, img_rot = ?, tags = ?, approved = ?, created_on = ?,
	created_by = ?, updated_on = ?, updated_by = ?, old_site_id = ?
WHERE scope = ? AND slug = ?`, set...)
	return err
}

// GetBySlug retrieves a plaque, or (nil, nil) when absent.
func (s *SQLiteStore) GetBySlug(scope, slug string) (*models.Plaque, error) {
	row := s.db.QueryRow(`
SELECT `+plaqueColumns+` FROM plaques WHERE scope = ? AND slug = ?`, scope, slug)
	p, err := scanPlaque(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Delete removes a plaque.
func (s *SQLiteStore) Delete(scope, slug string) error {
	_, err := s.db.Exec(`DELETE FROM plaques WHERE scope = ? AND slug = ?`, scope, slug)
	return err
}

// CountSlug reports how many plaques in scope hold the slug.
func (s *SQLiteStore) CountSlug(scope, slug string) (int, error) {
	var n int
	err := s.db.QueryRow(`
SELECT COUNT(*) FROM plaques WHERE scope = ? AND slug = ?`, scope, slug).Scan(&n)
	return n, err
}

// CountApproved reports the number of approved plaques in scope.
func (s *SQLiteStore) CountApproved(scope string) (int, error) {
	var n int
	err := s.db.QueryRow(`
SELECT COUNT(*) FROM plaques WHERE scope = ? AND approved = 1`, scope).Scan(&n)
	return n, err
}

// order is one of "ASC" or "DESC", never caller input.
func (s *SQLiteStore) firstApproved(scope, order string) (*models.Plaque, error) {
	row := s.db.QueryRow(`
SELECT `+plaqueColumns+` FROM plaques
WHERE scope = ? AND approved = 1
ORDER BY created_on `+order+`, slug ASC LIMIT 1`, scope)
	p, err := scanPlaque(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// EarliestApproved returns the oldest approved plaque.
func (s *SQLiteStore) EarliestApproved(scope string) (*models.Plaque, error) {
	return s.firstApproved(scope, "ASC")
}

// LatestApproved returns the newest approved plaque.
func (s *SQLiteStore) LatestApproved(scope string) (*models.Plaque, error) {
	return s.firstApproved(scope, "DESC")
}

// FirstApprovedSince returns the first approved plaque with
// created_on on or after t.
func (s *SQLiteStore) FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error) {
	row := s.db.QueryRow(`
SELECT `+plaqueColumns+` FROM plaques
WHERE scope = ? AND approved = 1 AND created_on >= ?
ORDER BY created_on ASC, slug ASC LIMIT 1`, scope, t.UnixNano())
	p, err := scanPlaque(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ApprovedAtOffset returns the approved plaque at the given offset in
// ascending created_on order.
func (s *SQLiteStore) ApprovedAtOffset(scope string, offset int) (*models.Plaque, error) {
	row := s.db.QueryRow(`
SELECT `+plaqueColumns+` FROM plaques
WHERE scope = ? AND approved = 1
ORDER BY created_on ASC, slug ASC LIMIT 1 OFFSET ?`, scope, offset)
	p, err := scanPlaque(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// Nearest prefilters candidates with a lat/lng bounding box, then
// orders the survivors by haversine distance.
func (s *SQLiteStore) Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]NearbyPlaque, error) {
	latDelta := radiusMeters / 111320.0 // meters per degree latitude
	lngDelta := 180.0
	if cos := math.Cos(lat * math.Pi / 180.0); cos > 1e-6 {
		lngDelta = latDelta / cos
	}
	rows, err := s.db.Query(`
SELECT `+plaqueColumns+` FROM plaques
WHERE scope = ? AND approved = 1
AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
		scope, lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []NearbyPlaque
	for rows.Next() {
		p, err := scanPlaque(rows)
		if err != nil {
			return nil, err
		}
		d := utils.HaversineMeters(lat, lng, p.Location.Lat, p.Location.Lng)
		if d <= radiusMeters {
			out = append(out, NearbyPlaque{Plaque: p, DistanceMeters: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListApproved pages through approved plaques, newest first.
func (s *SQLiteStore) ListApproved(scope string, limit int, cursor string) ([]*models.Plaque, string, error) {
	query := `
SELECT ` + plaqueColumns + ` FROM plaques
WHERE scope = ? AND approved = 1`
	args := []interface{}{scope}
	if cursor != "" {
		after, slug, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += ` AND (created_on < ? OR (created_on = ? AND slug > ?))`
		args = append(args, after.UnixNano(), after.UnixNano(), slug)
	}
	query += ` ORDER BY created_on DESC, slug ASC`
	if limit > 0 {
		// one extra row tells us whether another page exists
		query += ` LIMIT ?`
		args = append(args, limit+1)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var page []*models.Plaque
	for rows.Next() {
		p, err := scanPlaque(rows)
		if err != nil {
			return nil, "", err
		}
		page = append(page, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if limit > 0 && len(page) > limit {
		page = page[:limit]
		last := page[len(page)-1]
		next = EncodeCursor(last.CreatedOn, last.Slug)
	}
	return page, next, nil
}

// ListApprovedSince returns approved plaques created after t, newest first.
func (s *SQLiteStore) ListApprovedSince(scope string, t time.Time) ([]*models.Plaque, error) {
	rows, err := s.db.Query(`
SELECT `+plaqueColumns+` FROM plaques
WHERE scope = ? AND approved = 1 AND created_on > ?
ORDER BY created_on DESC`, scope, t.UnixNano())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectPlaques(rows)
}

// ListPending returns up to limit unapproved plaques, newest first.
func (s *SQLiteStore) ListPending(scope string, limit int) ([]*models.Plaque, error) {
	query := `
SELECT ` + plaqueColumns + ` FROM plaques
WHERE scope = ? AND approved = 0
ORDER BY created_on DESC`
	args := []interface{}{scope}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectPlaques(rows)
}

// Search matches the term against title, description, and tags.
func (s *SQLiteStore) Search(scope, term string, approvedOnly bool) ([]*models.Plaque, error) {
	like := "%" + strings.ToLower(term) + "%"
	query := `
SELECT ` + plaqueColumns + ` FROM plaques
WHERE scope = ?
AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?)`
	args := []interface{}{scope, like, like, like}
	if approvedOnly {
		query += ` AND approved = 1`
	}
	query += ` ORDER BY created_on ASC`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return collectPlaques(rows)
}

func collectPlaques(rows *sql.Rows) ([]*models.Plaque, error) {
	var out []*models.Plaque
	for rows.Next() {
		p, err := scanPlaque(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetFeatured marks the plaque as featured.
func (s *SQLiteStore) SetFeatured(scope, slug string) error {
	_, err := s.db.Exec(`
INSERT INTO featured (scope, slug, created_on) VALUES (?, ?, ?)`,
		scope, slug, time.Now().UnixNano())
	return err
}

// GetFeatured returns the most recently featured plaque.
func (s *SQLiteStore) GetFeatured(scope string) (*models.Plaque, error) {
	var slug string
	err := s.db.QueryRow(`
SELECT slug FROM featured WHERE scope = ?
ORDER BY created_on DESC LIMIT 1`, scope).Scan(&slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetBySlug(scope, slug)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
