// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Models    ModelsConfig    `yaml:"models"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Workers   WorkersConfig   `yaml:"workers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB bounds the total size of one multipart upload request.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// StorageConfig holds paths for the content cache and persisted media.
type StorageConfig struct {
	CacheDir string `yaml:"cache_dir"`
	MediaDir string `yaml:"media_dir"`
}

// ModelsConfig holds endpoints and model names for the external model services.
type ModelsConfig struct {
	OllamaURL           string `yaml:"ollama_url"`
	ChatModel           string `yaml:"chat_model"`
	ExpansionModel      string `yaml:"expansion_model"`
	VisionModel         string `yaml:"vision_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbeddingCacheSize  int    `yaml:"embedding_cache_size"`
	RerankURL           string `yaml:"rerank_url"`
	WhisperURL          string `yaml:"whisper_url"`
	OCRURL              string `yaml:"ocr_url"`
	// CaptionTimeoutSeconds bounds a single vision-caption call; on expiry the
	// image degrades to a placeholder description.
	CaptionTimeoutSeconds int `yaml:"caption_timeout_seconds"`
	// RequestsPerSecond rate-limits calls to the model server.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ChunkingConfig holds chunk sizing for each modality.
type ChunkingConfig struct {
	ChunkSize         int `yaml:"chunk_size"`
	ChunkOverlap      int `yaml:"chunk_overlap"`
	DocxChunkOverlap  int `yaml:"docx_chunk_overlap"`
	AudioChunkSize    int `yaml:"audio_chunk_size"`
	AudioOverlap      int `yaml:"audio_overlap"`
	ImageContextChars int `yaml:"image_context_chars"`
}

// RetrievalConfig holds query-time retrieval settings.
type RetrievalConfig struct {
	KRetrieval     int `yaml:"k_retrieval"`
	TopK           int `yaml:"top_k"`
	TopKVisual     int `yaml:"top_k_visual"`
	ExpansionCount int `yaml:"expansion_count"`
}

// WorkersConfig bounds the parallel processing pools.
type WorkersConfig struct {
	Pages  int `yaml:"pages"`
	Images int `yaml:"images"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CacheDir = expandPath(cfg.Storage.CacheDir, configDir)
	cfg.Storage.MediaDir = expandPath(cfg.Storage.MediaDir, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
