// Package main is the Kotae server entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/media"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/internal/retrieve"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/transcribe"
	"github.com/hyperjump/kotae/internal/vision"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Ingestor,
		components.Retriever,
		components.Transcriber,
		components.Session,
		components.Cache,
		components.Media,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// Components holds the wired application graph.
type Components struct {
	Session     *session.Session
	Cache       *cache.Store
	Media       *media.Store
	Embedder    embedding.Embedder
	Ingestor    *ingest.Ingestor
	Retriever   *retrieve.Retriever
	Transcriber transcribe.Transcriber
}

// Close releases component resources.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	cacheStore, err := cache.NewStore(cfg.Storage.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	mediaStore, err := media.NewStore(cfg.Storage.MediaDir, logger)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}
	sess := session.New(cfg.Models.EmbeddingDimensions, logger)

	ollamaEmbedder, err := embedding.NewOllamaEmbedder(
		cfg.Models.OllamaURL,
		cfg.Models.EmbeddingModel,
		cfg.Models.EmbeddingDimensions,
		cfg.Models.RequestsPerSecond,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	embedder, err := embedding.WrapLRU(ollamaEmbedder, cfg.Models.EmbeddingCacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	generator, err := llm.NewOllama(
		cfg.Models.OllamaURL,
		cfg.Models.ChatModel,
		cfg.Models.ExpansionModel,
		cfg.Models.RequestsPerSecond,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	captioner, err := vision.NewOllamaCaptioner(
		cfg.Models.OllamaURL,
		cfg.Models.VisionModel,
		time.Duration(cfg.Models.CaptionTimeoutSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("captioner: %w", err)
	}

	ocrClient := vision.NewHTTPOCR(cfg.Models.OCRURL, logger)
	transcriber := transcribe.NewHTTPTranscriber(cfg.Models.WhisperURL, logger)
	reranker := rerank.NewHTTPReranker(cfg.Models.RerankURL, logger)

	ingestor := ingest.New(ingest.Options{
		Extractor:   extract.NewExtractor(),
		Embedder:    embedder,
		Cache:       cacheStore,
		Media:       mediaStore,
		Session:     sess,
		Captioner:   captioner,
		OCR:         ocrClient,
		Transcriber: transcriber,
		Chunking:    cfg.Chunking,
		Workers:     cfg.Workers,
		Logger:      logger,
	})
	retriever := retrieve.New(retrieve.Options{
		Embedder:  embedder,
		Generator: generator,
		Reranker:  reranker,
		Session:   sess,
		Retrieval: cfg.Retrieval,
		Logger:    logger,
	})

	return &Components{
		Session:     sess,
		Cache:       cacheStore,
		Media:       mediaStore,
		Embedder:    embedder,
		Ingestor:    ingestor,
		Retriever:   retriever,
		Transcriber: transcriber,
	}, nil
}

func printUsage() {
	fmt.Println(`Kotae - multimodal document question answering

Usage:
  kotae server [--config path] [--debug]   Start the HTTP server
  kotae version                            Print version
  kotae help                               Show this help

The server expects Ollama plus the whisper, OCR, and reranker sidecars
configured in config.yaml.`)
}
