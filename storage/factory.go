package storage

import (
	"fmt"
	"log"

	"github.com/readtheplaque/plaqued/config"
)

// NewPlaqueStore creates a plaque storage backend based on the
// configuration.
func NewPlaqueStore(cfg *config.Config) (PlaqueStore, error) {
	switch cfg.StorageType {
	case "filesystem":
		return NewFilesystemStore(cfg.DataDir)

	case "sqlite":
		log.Printf("Using SQLite storage at %s", cfg.SQLitePath)
		return NewSQLiteStore(cfg.SQLitePath)

	case "mongodb":
		log.Printf("Using MongoDB storage: %s/%s", cfg.MongoURL, cfg.MongoDatabase)
		return NewMongoStore(cfg.MongoURL, cfg.MongoDatabase)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: filesystem, sqlite, mongodb)", cfg.StorageType)
	}
}

// NewImageStore creates an image storage backend. An empty bucket
// selects the local-disk store.
func NewImageStore(cfg *config.Config) (ImageStore, error) {
	if cfg.S3Bucket != "" {
		log.Printf("Using S3 image storage: bucket=%s prefix=%s", cfg.S3Bucket, cfg.S3Prefix)
		return NewS3ImageStore(cfg.S3Bucket, cfg.S3Prefix)
	}
	return NewLocalImageStore(cfg.ImageDir, cfg.BaseURL+"/img")
}
