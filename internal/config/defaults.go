package config

const (
	defaultDataDir         = "~/.local/share/hopper"
	defaultLogDir          = "~/.local/share/hopper/logs"
	defaultAPIBind         = "127.0.0.1:7519"
	defaultLLMBaseURL      = "https://api.openai.com/v1"
	defaultLLMModel        = "gpt-5-mini"
	defaultLLMTimeout      = 45
	defaultEmbedBaseURL    = "https://api.openai.com/v1"
	defaultEmbedModel      = "text-embedding-3-small"
	defaultEmbedTimeout    = 30
	defaultWorkerInterval  = 60
	defaultItemDelayMillis = 150
	defaultMaxAttempts     = 10
	defaultLogLimit        = 50
	defaultNtfyTimeout     = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Embeddings: Embeddings{
			BaseURL:        defaultEmbedBaseURL,
			Model:          defaultEmbedModel,
			TimeoutSeconds: defaultEmbedTimeout,
		},
		Workers: Workers{
			IntervalSeconds: defaultWorkerInterval,
			ItemDelayMillis: defaultItemDelayMillis,
			MaxAttempts:     defaultMaxAttempts,
		},
		Orchestrator: Orchestrator{
			LogLimit: defaultLogLimit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Lifecycle:      true,
			Ingest:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
