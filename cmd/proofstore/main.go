package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/cash-ledger/internal/config"
	"github.com/nimasrn/cash-ledger/internal/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const publicPrefix = "/uploads/proofs"

// UploadResponse is returned for a stored proof.
type UploadResponse struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps proof images as flat files in one directory.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// fileName builds proof-<unix ms>-<8 hex chars><ext>.
func (s *Store) fileName(ext string) string {
	return fmt.Sprintf("proof-%d-%s%s", s.now().UnixMilli(), uuid.NewString()[:8], ext)
}

// validName rejects anything that could escape the proof directory.
func validName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`)
}

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile("proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof file is required"})
		return
	}
	if fh.Size > services.MaxProofSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "proof must not exceed 5MB"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable proof file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, services.MaxProofSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable proof file"})
		return
	}
	if len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof file is empty"})
		return
	}
	if len(data) > services.MaxProofSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "proof must not exceed 5MB"})
		return
	}

	// the declared content type is not trusted
	mt := mimetype.Detect(data)
	ext, ok := services.ProofExtension(mt.String())
	if !ok {
		log.Warn().
			Str("filename", fh.Filename).
			Str("detected", mt.String()).
			Msg("Rejected proof upload")
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only jpeg, png and webp images are allowed"})
		return
	}

	name := h.store.fileName(ext)
	if err := os.WriteFile(filepath.Join(h.store.dir, name), data, 0o644); err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to write proof")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store proof"})
		return
	}

	log.Info().
		Str("name", name).
		Str("original", fh.Filename).
		Int("size", len(data)).
		Msg("Proof stored")

	c.JSON(http.StatusCreated, UploadResponse{
		Path:        publicPrefix + "/" + name,
		ContentType: mt.String(),
		Size:        len(data),
	})
}

func (h *Handler) Delete(c *gin.Context) {
	name := c.Param("name")
	if !validName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof name"})
		return
	}

	err := os.Remove(filepath.Join(h.store.dir, name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
	case err != nil:
		log.Error().Err(err).Str("name", name).Msg("Failed to delete proof")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete proof"})
	default:
		log.Info().Str("name", name).Msg("Proof deleted")
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) Serve(c *gin.Context) {
	name := c.Param("name")
	if !validName(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof name"})
		return
	}

	p := filepath.Join(h.store.dir, name)
	if _, err := os.Stat(p); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "proof not found"})
		return
	}
	c.File(p)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if _, err := os.Stat(h.store.dir); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "proof directory is not accessible",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/proofs", handler.Upload)
		v1.DELETE("/proofs/:name", handler.Delete)
	}

	router.GET(publicPrefix+"/:name", handler.Serve)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.Load(envPath()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg := config.Get()
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := NewStore(cfg.ProofStoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare proof directory")
	}

	log.Info().
		Str("addr", cfg.ProofStoreListenAddr).
		Str("dir", cfg.ProofStoreDir).
		Msg("Starting proof store")

	srv := &http.Server{
		Addr:         cfg.ProofStoreListenAddr,
		Handler:      SetupRouter(NewHandler(store)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func envPath() string {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, "--env=") {
			return strings.TrimPrefix(v, "--env=")
		}
	}
	return ""
}
