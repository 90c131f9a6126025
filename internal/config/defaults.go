package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = "./cache"
	}
	if cfg.Storage.MediaDir == "" {
		cfg.Storage.MediaDir = "./media"
	}
	if cfg.Models.OllamaURL == "" {
		cfg.Models.OllamaURL = "http://localhost:11434"
	}
	if cfg.Models.ChatModel == "" {
		cfg.Models.ChatModel = "llama3.2"
	}
	if cfg.Models.ExpansionModel == "" {
		cfg.Models.ExpansionModel = "gemma3:1b"
	}
	if cfg.Models.VisionModel == "" {
		cfg.Models.VisionModel = "llava"
	}
	if cfg.Models.EmbeddingModel == "" {
		cfg.Models.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Models.EmbeddingDimensions == 0 {
		cfg.Models.EmbeddingDimensions = 768
	}
	if cfg.Models.EmbeddingCacheSize == 0 {
		cfg.Models.EmbeddingCacheSize = 4096
	}
	if cfg.Models.RerankURL == "" {
		cfg.Models.RerankURL = "http://localhost:8787"
	}
	if cfg.Models.WhisperURL == "" {
		cfg.Models.WhisperURL = "http://localhost:8786"
	}
	if cfg.Models.OCRURL == "" {
		cfg.Models.OCRURL = "http://localhost:8785"
	}
	if cfg.Models.CaptionTimeoutSeconds == 0 {
		cfg.Models.CaptionTimeoutSeconds = 60
	}
	if cfg.Models.RequestsPerSecond == 0 {
		cfg.Models.RequestsPerSecond = 8
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 150
	}
	if cfg.Chunking.DocxChunkOverlap == 0 {
		cfg.Chunking.DocxChunkOverlap = 200
	}
	if cfg.Chunking.AudioChunkSize == 0 {
		cfg.Chunking.AudioChunkSize = 1000
	}
	if cfg.Chunking.AudioOverlap == 0 {
		cfg.Chunking.AudioOverlap = 150
	}
	if cfg.Chunking.ImageContextChars == 0 {
		cfg.Chunking.ImageContextChars = 500
	}
	if cfg.Retrieval.KRetrieval == 0 {
		cfg.Retrieval.KRetrieval = 5
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 2
	}
	if cfg.Retrieval.TopKVisual == 0 {
		cfg.Retrieval.TopKVisual = 3
	}
	if cfg.Retrieval.ExpansionCount == 0 {
		cfg.Retrieval.ExpansionCount = 3
	}
	if cfg.Workers.Pages == 0 {
		cfg.Workers.Pages = 4
	}
	if cfg.Workers.Images == 0 {
		cfg.Workers.Images = 2
	}
}
