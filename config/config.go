package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the plaqued service
type Config struct {
	Port    int    `json:"port"`
	BaseURL string `json:"base_url"`
	Scope   string `json:"scope"`

	StorageType   string `json:"storage_type"`
	DataDir       string `json:"data_dir"`
	SQLitePath    string `json:"sqlite_path"`
	MongoURL      string `json:"mongo_url"`
	MongoDatabase string `json:"mongo_database"`

	ImageDir string `json:"image_dir"`
	S3Bucket string `json:"s3_bucket"`
	S3Prefix string `json:"s3_prefix"`

	DynamoCacheTable string        `json:"dynamo_cache_table"`
	BoundsTTL        time.Duration `json:"bounds_ttl"`

	AdminPasswordHash string `json:"-"`
	APIKey            string `json:"-"`

	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// LoadConfig loads configuration from a .env file (if present), CLI
// flags, and environment variables. Environment wins over flags.
func LoadConfig() *Config {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	config := &Config{
		Port:          8080,
		BaseURL:       "",
		Scope:         "v",
		StorageType:   "filesystem",
		DataDir:       "./data",
		SQLitePath:    "./plaqued.db",
		MongoURL:      "",
		MongoDatabase: "plaqued",
		ImageDir:      "./images",
		BoundsTTL:     time.Hour,
	}

	// Parse CLI flags. Skipped when the flag set was already parsed,
	// as it is under "go test".
	if !flag.Parsed() {
		registerFlags(config)
		flag.Parse()
	}

	applyEnv(config)

	// secrets come from the environment only, never flags
	config.AdminPasswordHash = os.Getenv("PLAQUED_ADMIN_PASSWORD_HASH")
	config.APIKey = os.Getenv("PLAQUED_API_KEY")

	return config
}

func registerFlags(config *Config) {
	flag.IntVar(&config.Port, "port", config.Port, "Port to listen on")
	flag.StringVar(&config.BaseURL, "url", config.BaseURL, "Base URL for plaque links")
	flag.StringVar(&config.Scope, "scope", config.Scope, "Default plaque namespace")
	flag.StringVar(&config.StorageType, "storage", config.StorageType, "Storage backend: filesystem, sqlite, or mongodb")
	flag.StringVar(&config.DataDir, "data-dir", config.DataDir, "Directory for filesystem storage")
	flag.StringVar(&config.SQLitePath, "sqlite-path", config.SQLitePath, "Path to the SQLite database file")
	flag.StringVar(&config.MongoURL, "mongo-url", config.MongoURL, "MongoDB connection string")
	flag.StringVar(&config.MongoDatabase, "mongo-db", config.MongoDatabase, "MongoDB database name")
	flag.StringVar(&config.ImageDir, "image-dir", config.ImageDir, "Directory for locally stored images")
	flag.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 bucket for image storage")
	flag.StringVar(&config.S3Prefix, "s3-prefix", config.S3Prefix, "S3 key prefix for image storage")
	flag.StringVar(&config.DynamoCacheTable, "dynamo-cache-table", config.DynamoCacheTable, "DynamoDB table for the shared cache")
	flag.DurationVar(&config.BoundsTTL, "bounds-ttl", config.BoundsTTL, "TTL for cached time bounds")
}

// applyEnv overrides config values from environment variables.
func applyEnv(config *Config) {
	if val := os.Getenv("PLAQUED_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Port = port
		}
	}
	if val := os.Getenv("PLAQUED_URL"); val != "" {
		config.BaseURL = val
	}
	if val := os.Getenv("PLAQUED_SCOPE"); val != "" {
		config.Scope = val
	}
	if val := os.Getenv("PLAQUED_STORAGE"); val != "" {
		config.StorageType = val
	}
	if val := os.Getenv("PLAQUED_DATA_DIR"); val != "" {
		config.DataDir = val
	}
	if val := os.Getenv("PLAQUED_SQLITE_PATH"); val != "" {
		config.SQLitePath = val
	}
	if val := os.Getenv("PLAQUED_MONGO_URL"); val != "" {
		config.MongoURL = val
	}
	if val := os.Getenv("PLAQUED_MONGO_DB"); val != "" {
		config.MongoDatabase = val
	}
	if val := os.Getenv("PLAQUED_IMAGE_DIR"); val != "" {
		config.ImageDir = val
	}
	if val := os.Getenv("PLAQUED_S3_BUCKET"); val != "" {
		config.S3Bucket = val
	}
	if val := os.Getenv("PLAQUED_S3_PREFIX"); val != "" {
		config.S3Prefix = val
	}
	if val := os.Getenv("PLAQUED_DYNAMO_CACHE_TABLE"); val != "" {
		config.DynamoCacheTable = val
	}
	if val := os.Getenv("PLAQUED_BOUNDS_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			config.BoundsTTL = ttl
		}
	}
}
