package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tsunagu/data/tsunagu.db"
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "/usr/local/var/tsunagu/data/indices"
	}
	if cfg.Graph.URL == "" {
		cfg.Graph.URL = "http://127.0.0.1:8080"
	}
	if cfg.Graph.Name == "" {
		cfg.Graph.Name = "hugegraph"
	}
	if cfg.Graph.TimeoutSeconds == 0 {
		cfg.Graph.TimeoutSeconds = 30
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/tsunagu/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Rerank.TimeoutSeconds == 0 {
		cfg.Rerank.TimeoutSeconds = 10
	}
	if cfg.Rerank.APIKeyEnv == "" {
		cfg.Rerank.APIKeyEnv = "RERANK_API_KEY"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.GraphRatio == 0 {
		cfg.Retrieval.GraphRatio = 0.5
	}
	if cfg.Retrieval.MaxKeywords == 0 {
		cfg.Retrieval.MaxKeywords = 5
	}
	if cfg.Retrieval.TopKPerKeyword == 0 {
		cfg.Retrieval.TopKPerKeyword = 1
	}
	if cfg.Retrieval.GraphDepth == 0 {
		cfg.Retrieval.GraphDepth = 2
	}
	if cfg.Retrieval.MaxGraphItems == 0 {
		cfg.Retrieval.MaxGraphItems = 30
	}
	if cfg.Build.ChunkSize == 0 {
		cfg.Build.ChunkSize = 512
	}
	if cfg.Build.ChunkOverlap == 0 {
		cfg.Build.ChunkOverlap = 50
	}
	if cfg.Build.FetchLimit == 0 {
		cfg.Build.FetchLimit = 10000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
