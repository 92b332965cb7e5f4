package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/readtheplaque/plaqued/models"
	"github.com/readtheplaque/plaqued/utils"
)

// MongoStore implements PlaqueStore using MongoDB. The geographic
// queries use a 2dsphere index over a GeoJSON point that is kept in
// sync with the plaque's lat/lng on every write.
type MongoStore struct {
	client   *mongo.Client
	plaques  *mongo.Collection
	featured *mongo.Collection
}

// plaqueDoc wraps a plaque with the GeoJSON location field the
// 2dsphere index needs.
type plaqueDoc struct {
	models.Plaque `bson:",inline"`
	Loc           geoJSONPoint `bson:"loc"`
}

type geoJSONPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lng, lat]
}

func docFor(p *models.Plaque) plaqueDoc {
	return plaqueDoc{
		Plaque: *p,
		Loc: geoJSONPoint{
			Type:        "Point",
			Coordinates: []float64{p.Location.Lng, p.Location.Lat},
		},
	}
}

// NewMongoStore creates a new MongoDB storage backend.
func NewMongoStore(url, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	database := client.Database(dbName)
	store := &MongoStore{
		client:   client,
		plaques:  database.Collection("plaques"),
		featured: database.Collection("featured"),
	}
	if err := store.createIndexes(); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *MongoStore) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slugIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	createdIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "scope", Value: 1}, {Key: "approved", Value: 1}, {Key: "created_on", Value: -1}},
	}
	geoIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "loc", Value: "2dsphere"}},
	}
	textIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "title", Value: "text"},
			{Key: "description", Value: "text"},
			{Key: "tags", Value: "text"},
		},
	}

	_, err := m.plaques.Indexes().CreateMany(ctx, []mongo.IndexModel{
		slugIndex, createdIndex, geoIndex, textIndex,
	})
	return err
}

func mongoCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Store inserts a new plaque.
func (m *MongoStore) Store(p *models.Plaque) error {
	ctx, cancel := mongoCtx()
	defer cancel()
	_, err := m.plaques.InsertOne(ctx, docFor(p))
	if mongo.IsDuplicateKeyError(err) {
		return ErrSlugExists
	}
	return err
}

// Update overwrites an existing plaque.
func (m *MongoStore) Update(p *models.Plaque) error {
	ctx, cancel := mongoCtx()
	defer cancel()
	_, err := m.plaques.ReplaceOne(ctx,
		bson.M{"scope": p.Scope, "slug": p.Slug}, docFor(p))
	return err
}

func (m *MongoStore) findOne(filter bson.M, opts ...*options.FindOneOptions) (*models.Plaque, error) {
	ctx, cancel := mongoCtx()
	defer cancel()
	var doc plaqueDoc
	err := m.plaques.FindOne(ctx, filter, opts...).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := doc.Plaque
	return &p, nil
}

// GetBySlug retrieves a plaque, or (nil, nil) when absent.
func (m *MongoStore) GetBySlug(scope, slug string) (*models.Plaque, error) {
	return m.findOne(bson.M{"scope": scope, "slug": slug})
}

// Delete removes a plaque.
func (m *MongoStore) Delete(scope, slug string) error {
	ctx, cancel := mongoCtx()
	defer cancel()
	_, err := m.plaques.DeleteOne(ctx, bson.M{"scope": scope, "slug": slug})
	return err
}

// CountSlug reports how many plaques in scope hold the slug.
func (m *MongoStore) CountSlug(scope, slug string) (int, error) {
	ctx, cancel := mongoCtx()
	defer cancel()
	n, err := m.plaques.CountDocuments(ctx, bson.M{"scope": scope, "slug": slug})
	return int(n), err
}

// CountApproved reports the number of approved plaques in scope.
func (m *MongoStore) CountApproved(scope string) (int, error) {
	ctx, cancel := mongoCtx()
	defer cancel()
	n, err := m.plaques.CountDocuments(ctx, bson.M{"scope": scope, "approved": true})
	return int(n), err
}

// EarliestApproved returns the oldest approved plaque.
func (m *MongoStore) EarliestApproved(scope string) (*models.Plaque, error) {
	return m.findOne(
		bson.M{"scope": scope, "approved": true},
		options.FindOne().SetSort(bson.D{{Key: "created_on", Value: 1}, {Key: "slug", Value: 1}}))
}

// LatestApproved returns the newest approved plaque.
func (m *MongoStore) LatestApproved(scope string) (*models.Plaque, error) {
	return m.findOne(
		bson.M{"scope": scope, "approved": true},
		options.FindOne().SetSort(bson.D{{Key: "created_on", Value: -1}, {Key: "slug", Value: 1}}))
}

// FirstApprovedSince returns the first approved plaque with
// created_on on or after t.
func (m *MongoStore) FirstApprovedSince(scope string, t time.Time) (*models.Plaque, error) {
	return m.findOne(
		bson.M{"scope": scope, "approved": true, "created_on": bson.M{"$gte": t}},
		options.FindOne().SetSort(bson.D{{Key: "created_on", Value: 1}, {Key: "slug", Value: 1}}))
}

// ApprovedAtOffset returns the approved plaque at the given offset in
// ascending created_on order.
func (m *MongoStore) ApprovedAtOffset(scope string, offset int) (*models.Plaque, error) {
	return m.findOne(
		bson.M{"scope": scope, "approved": true},
		options.FindOne().
			SetSort(bson.D{{Key: "created_on", Value: 1}, {Key: "slug", Value: 1}}).
			SetSkip(int64(offset)))
}

// Nearest uses the 2dsphere index to find approved plaques within
// radiusMeters, nearest first.
func (m *MongoStore) Nearest(scope string, lat, lng, radiusMeters float64, limit int) ([]NearbyPlaque, error) {
	ctx, cancel := mongoCtx()
	defer cancel()

	filter := bson.M{
		"scope":    scope,
		"approved": true,
		"loc": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{lng, lat},
				},
				"$maxDistance": radiusMeters,
			},
		},
	}
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.plaques.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []NearbyPlaque
	for cur.Next(ctx) {
		var doc plaqueDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p := doc.Plaque
		out = append(out, NearbyPlaque{
			Plaque:         &p,
			DistanceMeters: utils.HaversineMeters(lat, lng, p.Location.Lat, p.Location.Lng),
		})
	}
	return out, cur.Err()
}

func (m *MongoStore) find(filter bson.M, opts ...*options.FindOptions) ([]*models.Plaque, error) {
	ctx, cancel := mongoCtx()
	defer cancel()
	cur, err := m.plaques.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []*models.Plaque
	for cur.Next(ctx) {
		var doc plaqueDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p := doc.Plaque
		out = append(out, &p)
	}
	return out, cur.Err()
}

// ListApproved pages through approved plaques, newest first.
func (m *MongoStore) ListApproved(scope string, limit int, cursor string) ([]*models.Plaque, string, error) {
	filter := bson.M{"scope": scope, "approved": true}
	if cursor != "" {
		after, slug, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		filter["$or"] = []bson.M{
			{"created_on": bson.M{"$lt": after}},
			{"created_on": after, "slug": bson.M{"$gt": slug}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_on", Value: -1}, {Key: "slug", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit + 1))
	}

	page, err := m.find(filter, opts)
	if err != nil {
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
func (m *MongoStore) ListApprovedSince(scope string, t time.Time) ([]*models.Plaque, error) {
	return m.find(
		bson.M{"scope": scope, "approved": true, "created_on": bson.M{"$gt": t}},
		options.Find().SetSort(bson.D{{Key: "created_on", Value: -1}}))
}

// ListPending returns up to limit unapproved plaques, newest first.
func (m *MongoStore) ListPending(scope string, limit int) ([]*models.Plaque, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_on", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(bson.M{"scope": scope, "approved": false}, opts)
}

// Search runs a $text query against the title/description/tags index.
func (m *MongoStore) Search(scope, term string, approvedOnly bool) ([]*models.Plaque, error) {
	filter := bson.M{"scope": scope, "$text": bson.M{"$search": term}}
	if approvedOnly {
		filter["approved"] = true
	}
	return m.find(filter, options.Find().SetSort(bson.D{{Key: "created_on", Value: 1}}))
}

// SetFeatured marks the plaque as featured.
func (m *MongoStore) SetFeatured(scope, slug string) error {
	ctx, cancel := mongoCtx()
	defer cancel()
	_, err := m.featured.InsertOne(ctx, bson.M{
		"scope":      scope,
		"slug":       slug,
		"created_on": time.Now(),
	})
	return err
}

// GetFeatured returns the most recently featured plaque.
func (m *MongoStore) GetFeatured(scope string) (*models.Plaque, error) {
	ctx, cancel := mongoCtx()
	defer cancel()
	var doc models.FeaturedPlaque
	err := m.featured.FindOne(ctx,
		bson.M{"scope": scope},
		options.FindOne().SetSort(bson.D{{Key: "created_on", Value: -1}}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.GetBySlug(scope, doc.Slug)
}

// Close closes the MongoDB connection.
func (m *MongoStore) Close() error {
	ctx, cancel := mongoCtx()
	defer cancel()
	return m.client.Disconnect(ctx)
}
