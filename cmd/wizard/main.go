package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pawfound/sighting-wizard/internal/chat"
	"github.com/pawfound/sighting-wizard/internal/genai"
	"github.com/pawfound/sighting-wizard/internal/geocode"
	"github.com/pawfound/sighting-wizard/internal/mail"
	"github.com/pawfound/sighting-wizard/internal/photo"
	"github.com/pawfound/sighting-wizard/internal/server"
	"github.com/pawfound/sighting-wizard/internal/store"
	"github.com/pawfound/sighting-wizard/internal/submit"
	"github.com/pawfound/sighting-wizard/internal/vision"
	"github.com/pawfound/sighting-wizard/internal/wizard"
)

const (
	sessionSweepInterval = 10 * time.Minute
	sessionMaxIdle       = 2 * time.Hour
)

func main() {
	// Missing .env is fine; environment variables may be set directly.
	_ = godotenv.Load()

	listenAddr := flag.String("listen", envOr("PAWFOUND_LISTEN", ":8080"), "HTTP listen address")
	dbPath := flag.String("db", envOr("PAWFOUND_DB_PATH", "./pawfound.db"), "SQLite database path")
	dataDir := flag.String("data", envOr("PAWFOUND_DATA_DIR", "./data"), "scratch directory for uploaded photos")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	db, err := store.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		ListenAddr:     *listenAddr,
		DBPath:         *dbPath,
		DataDir:        *dataDir,
		BaseURL:        envOr("PAWFOUND_BASE_URL", "http://localhost:8080"),
		SendGridKey:    os.Getenv("PAWFOUND_SENDGRID_KEY"),
		FromEmail:      envOr("PAWFOUND_FROM_EMAIL", "hello@pawfound.app"),
		FromName:       envOr("PAWFOUND_FROM_NAME", "PawFound"),
		GoogleClientID: os.Getenv("PAWFOUND_GOOGLE_CLIENT_ID"),
		GoogleSecret:   os.Getenv("PAWFOUND_GOOGLE_SECRET"),
		GeminiAPIKey:   os.Getenv("PAWFOUND_GEMINI_API_KEY"),
		GeminiModel:    os.Getenv("PAWFOUND_GEMINI_MODEL"),
		EnrichPhotos:   envBool("PAWFOUND_ENRICH_PHOTOS", true),
	}

	// Object storage for report photos.
	var photos photo.Storage
	if endpoint := os.Getenv("PAWFOUND_S3_ENDPOINT"); endpoint != "" {
		s3, err := photo.NewS3Storage(photo.S3Config{
			Endpoint:      endpoint,
			Region:        os.Getenv("PAWFOUND_S3_REGION"),
			AccessKey:     os.Getenv("PAWFOUND_S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("PAWFOUND_S3_SECRET_KEY"),
			Bucket:        envOr("PAWFOUND_S3_BUCKET", "pawfound-photos"),
			UseSSL:        envBool("PAWFOUND_S3_USE_SSL", true),
			PublicBaseURL: os.Getenv("PAWFOUND_S3_PUBLIC_URL"),
		})
		if err != nil {
			log.Fatalf("Failed to init photo storage: %v", err)
		}
		photos = s3
	} else {
		log.Println("WARNING: PAWFOUND_S3_ENDPOINT not set; photos will not be uploaded")
	}

	// Gemini client for photo enrichment and the chat flow.
	var aiClient genai.Client
	if cfg.GeminiAPIKey != "" {
		aiClient, err = genai.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to init Gemini client: %v", err)
		}
	} else {
		log.Println("WARNING: PAWFOUND_GEMINI_API_KEY not set; photo enrichment and chat are degraded")
	}

	var analyzer wizard.Analyzer
	if aiClient != nil {
		analyzer = vision.NewAnalyzer(aiClient, cfg.GeminiModel)
	}

	geocoder := geocode.NewNominatim(os.Getenv("PAWFOUND_NOMINATIM_URL"), "pawfound/1.0 ("+cfg.FromEmail+")")
	pipeline := submit.NewPipeline(db, photos, geocoder, logger)

	engine := wizard.NewEngine(analyzer, pipeline, cfg.EnrichPhotos && analyzer != nil, logger)
	chats := chat.NewController(aiClient, cfg.GeminiModel, pipeline, db, logger)

	mailer := mail.New(mail.Config{
		FromAddress: cfg.FromEmail,
		FromName:    cfg.FromName,
		APIKey:      cfg.SendGridKey,
		SandboxMode: cfg.SendGridKey == "",
	}, nil)

	srv := server.NewServer(cfg, db, engine, chats, pipeline, mailer, logger)
	defer srv.Stop()

	// Background sweeps: abandoned wizard sessions and chats, expired
	// auth sessions.
	go func() {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := engine.Sweep(sessionMaxIdle); n > 0 {
					logger.Info("swept wizard sessions", "count", n)
				}
				if n := chats.Sweep(sessionMaxIdle); n > 0 {
					logger.Info("swept chat conversations", "count", n)
				}
				if err := db.DeleteExpiredSessions(ctx); err != nil {
					log.Printf("ERROR: delete expired sessions: %v", err)
				}
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:    *listenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("Listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
