package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/readtheplaque/plaqued/cache"
	"github.com/readtheplaque/plaqued/config"
	"github.com/readtheplaque/plaqued/handlers"
	"github.com/readtheplaque/plaqued/picker"
	"github.com/readtheplaque/plaqued/services"
	"github.com/readtheplaque/plaqued/storage"
	"github.com/readtheplaque/plaqued/utils"

	// Lambda imports (only used when in Lambda mode)
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

// Lambda-specific variables
var (
	ginLambdaV1   *ginadapter.GinLambda
	ginLambdaV2   *ginadapter.GinLambdaV2
	ginLambdaOnce sync.Once
)

// isLambdaEnvironment detects if running in AWS Lambda
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func main() {

	// Print version/build info at startup
	log.Printf("PLAQUED Version: %s", Version)
	log.Printf("Build Time:      %s", BuildTime)
	log.Printf("Commit Hash:     %s", CommitHash)

	// Load configuration
	cfg := config.LoadConfig()
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if utils.IsDebugEnabled() {
		log.Printf("[DEBUG] Loaded config: %+v", cfg)
	}

	// Initialize storage backend
	store, err := storage.NewPlaqueStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	images, err := storage.NewImageStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize image storage: %v", err)
	}

	// The shared cache keeps the random picker's time window warm. A
	// DynamoDB table is only worth it when several instances (or
	// Lambda invocations) share the window.
	var backing cache.Cache
	if cfg.DynamoCacheTable != "" {
		backing, err = cache.NewDynamoCache(cfg.DynamoCacheTable, os.Getenv("AWS_REGION"))
		if err != nil {
			log.Fatalf("Failed to initialize DynamoDB cache: %v", err)
		}
		log.Printf("Using DynamoDB cache table %s", cfg.DynamoCacheTable)
	} else {
		backing = cache.NewMemoryCache()
	}
	bounds := cache.NewBoundsCache(backing, cfg.BoundsTTL)

	// Setup router
	pk := picker.New(store, bounds)
	service := services.NewPlaqueService(store, images, pk, bounds, cfg)
	router := setupRouter(service, images, backing, cfg)

	// Check if running in Lambda environment
	if isLambdaEnvironment() {
		log.Println("Starting in AWS Lambda mode")
		ginLambdaOnce.Do(func() {
			ginLambdaV1 = ginadapter.New(router)
			ginLambdaV2 = ginadapter.NewV2(router)
		})
		lambda.Start(lambdaHandler)
		return
	}

	// Run in container/server mode
	log.Println("Starting in HTTP server mode")
	runHTTPServer(router, cfg, store)
}

// lambdaHandler handles Lambda requests for both v1 and v2 formats
func lambdaHandler(ctx context.Context, event interface{}) (interface{}, error) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return events.APIGatewayV2HTTPResponse{
			StatusCode: 500,
			Body:       "Failed to process event",
			Headers:    map[string]string{"Content-Type": "text/plain"},
		}, err
	}

	// Lambda Function URLs and HTTP API deliver v2 events
	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(eventBytes, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		return ginLambdaV2.ProxyWithContext(ctx, reqV2)
	}

	// REST API and ALB deliver v1 events
	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(eventBytes, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		return ginLambdaV1.ProxyWithContext(ctx, reqV1)
	}

	log.Printf("Unable to parse event as APIGateway v1 or v2 format: %s", string(eventBytes))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 500,
		Body:       "Unsupported event type - this function expects API Gateway or Lambda Function URL events",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}, fmt.Errorf("unsupported event type: %T", event)
}

// setupRouter creates and configures the Gin router
func setupRouter(service *services.PlaqueService, images storage.ImageStore, payloads cache.Cache, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	pageHandler := handlers.NewPageHandler(service, cfg)
	submitHandler := handlers.NewSubmitHandler(service, cfg)
	randomHandler := handlers.NewRandomHandler(service, cfg)
	geoHandler := handlers.NewGeoHandler(service, payloads, cfg.Scope)
	searchHandler := handlers.NewSearchHandler(service)
	apiHandler := handlers.NewAPIHandler(service, cfg)
	adminHandler := handlers.NewAdminHandler(service, payloads, cfg)
	rssHandler := handlers.NewRSSHandler(service, cfg)
	systemHandler := handlers.NewSystemHandler(cfg)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(jsonRecovery())
	router.Use(gin.Recovery())

	// Static assets and templates
	router.StaticFile("/favicon.ico", "./static/favicon.ico")
	router.LoadHTMLGlob("static/*.html")
	router.Static("/static", "./static")

	// Locally stored plaque images
	if local, ok := images.(*storage.LocalImageStore); ok {
		router.Static("/img", local.Dir())
	}

	// Pages
	router.GET("/", pageHandler.Index)
	router.GET("/page/:cursor", pageHandler.Index)
	router.GET("/plaque/:slug", pageHandler.View)
	router.GET("/add", pageHandler.AddForm)
	router.GET("/tags", pageHandler.Tags)
	router.GET("/tag/:tag", pageHandler.Tagged)

	// Submissions
	router.POST("/add", submitHandler.Submit)

	// Random plaque
	router.GET("/random", randomHandler.Random)
	router.GET("/random/:count", randomHandler.RandomMany)
	router.GET("/randompage", randomHandler.Random)

	// Map data
	router.GET("/geojson/all", geoHandler.All)
	router.GET("/geojson/updates/:since", geoHandler.Updates)
	router.GET("/nearby", geoHandler.Nearby)
	router.GET("/nearby/:lat/:lng/:count", geoHandler.NearbyPath)
	router.GET("/geo/:lat/:lng/:radius", geoHandler.GeoRadius)

	// Search and feeds
	router.GET("/search/:term", searchHandler.Search)
	router.POST("/search", searchHandler.SearchForm)
	router.GET("/rss", rssHandler.Feed)

	// Plaque JSON API
	router.GET("/api/v1/plaque/:slug", apiHandler.GetPlaque)

	// Moderation
	admin := router.Group("/admin", adminAuth(cfg))
	admin.GET("/pending", adminHandler.Pending)
	admin.GET("/pending/random", adminHandler.RandomPending)
	admin.POST("/approve/:slug", adminHandler.Approve)
	admin.POST("/disapprove/:slug", adminHandler.Disapprove)
	admin.POST("/edit/:slug", adminHandler.Edit)
	admin.POST("/delete/:slug", adminHandler.Delete)
	admin.DELETE("/plaque/:slug", adminHandler.Delete)
	admin.POST("/feature/:slug", adminHandler.Feature)
	admin.POST("/flush", adminHandler.Flush)

	// System routes
	router.GET("/health", systemHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Global 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router
}

// jsonRecovery returns a middleware that recovers from panics and ensures
// the response is JSON formatted so API clients can parse error responses.
func jsonRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC] %v", r)
				c.Header("Content-Type", "application/json; charset=utf-8")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// adminAuth returns a middleware guarding the moderation routes. It
// accepts either an API key via Authorization: Bearer <key> or
// X-Api-Key, or HTTP basic auth checked against the configured bcrypt
// password hash. With neither configured all requests are denied.
func adminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APIKey != "" {
			var key string
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				key = strings.TrimSpace(auth[7:])
			}
			if key == "" {
				key = strings.TrimSpace(c.GetHeader("X-Api-Key"))
			}
			if key == cfg.APIKey {
				c.Next()
				return
			}
		}

		if cfg.AdminPasswordHash != "" {
			if _, pass, ok := c.Request.BasicAuth(); ok {
				if bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(pass)) == nil {
					c.Next()
					return
				}
			}
			c.Header("WWW-Authenticate", `Basic realm="plaqued admin"`)
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// runHTTPServer starts the HTTP server for container mode
func runHTTPServer(router *gin.Engine, cfg *config.Config, store storage.PlaqueStore) {
	// Ensure cleanup on exit
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}()

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting plaqued server on port %d", cfg.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	} else {
		log.Println("Server shutdown complete")
	}
}
