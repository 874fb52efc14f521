package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/arcana/pkg/adapter"
	"github.com/m-mizutani/arcana/pkg/adapter/dify"
	"github.com/m-mizutani/arcana/pkg/interpreter"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/usecase/reading"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	providerDify   = "dify"
	providerGemini = "gemini"

	backendSQLite    = "sqlite"
	backendFirestore = "firestore"
	backendMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	historyBackend string
	historyPath    string
	project        string
	database       string

	// Interpretation
	provider       string
	difyAPIURL     string
	difyAPIKey     string
	difyUser       string
	responseMode   string
	timeout        time.Duration
	geminiProject  string
	geminiLocation string
	geminiModel    string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ARCANA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("ARCANA_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "history-backend",
			Usage:       "History store (sqlite, firestore, memory)",
			Value:       backendSQLite,
			Sources:     cli.EnvVars("ARCANA_HISTORY_BACKEND"),
			Destination: &cfg.historyBackend,
		},
		&cli.StringFlag{
			Name:        "history-path",
			Usage:       "SQLite database file for history",
			Value:       "~/.arcana/history.db",
			Sources:     cli.EnvVars("ARCANA_HISTORY_PATH"),
			Destination: &cfg.historyPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for interpretation service configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "provider",
			Usage:       "Interpretation provider (dify, gemini)",
			Value:       providerDify,
			Sources:     cli.EnvVars("ARCANA_PROVIDER"),
			Destination: &cfg.provider,
		},
		&cli.StringFlag{
			Name:        "dify-api-url",
			Usage:       "Dify API base URL",
			Sources:     cli.EnvVars("DIFY_API_URL"),
			Destination: &cfg.difyAPIURL,
		},
		&cli.StringFlag{
			Name:        "dify-api-key",
			Usage:       "Dify application API key",
			Sources:     cli.EnvVars("DIFY_API_KEY"),
			Destination: &cfg.difyAPIKey,
		},
		&cli.StringFlag{
			Name:        "dify-user",
			Usage:       "User identifier sent to Dify",
			Value:       dify.DefaultUser,
			Sources:     cli.EnvVars("DIFY_USER"),
			Destination: &cfg.difyUser,
		},
		&cli.StringFlag{
			Name:        "response-mode",
			Usage:       "Response mode (blocking, streaming)",
			Value:       string(dify.ModeStreaming),
			Sources:     cli.EnvVars("ARCANA_RESPONSE_MODE"),
			Destination: &cfg.responseMode,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Ceiling for one interpretation call",
			Value:       dify.DefaultTimeout,
			Sources:     cli.EnvVars("ARCANA_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context, w io.Writer) (context.Context, error) {
	format := logging.Format(cfg.logFormat)
	if err := format.Validate(); err != nil {
		return ctx, err
	}

	logger := logging.New(cfg.logLevel, w, logging.WithFormat(format))
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates the history store. The returned function releases it.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, func(), error) {
	switch cfg.historyBackend {
	case backendMemory:
		return repository.NewMemory(), func() {}, nil

	case backendSQLite:
		path, err := expandHome(cfg.historyPath)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.NewSQLite(path)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, closer(ctx, repo), nil

	case backendFirestore:
		if cfg.project == "" {
			return nil, nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, nil, goerr.New("database is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, closer(ctx, repo), nil

	default:
		return nil, nil, goerr.New("unknown history backend", goerr.V("backend", cfg.historyBackend))
	}
}

func closer(ctx context.Context, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logging.From(ctx).Warn("failed to close repository", "error", err)
		}
	}
}

// newDify creates a new Dify client instance
func (cfg *config) newDify() (*dify.Client, error) {
	if cfg.difyAPIURL == "" {
		return nil, goerr.New("dify-api-url is required")
	}
	if cfg.difyAPIKey == "" {
		return nil, goerr.New("dify-api-key is required")
	}

	client, err := dify.New(cfg.difyAPIURL, cfg.difyAPIKey,
		dify.WithUser(cfg.difyUser),
		dify.WithMode(dify.Mode(cfg.responseMode)),
		dify.WithTimeout(cfg.timeout),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create dify client")
	}
	return client, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return client, nil
}

// newInterpreter creates the interpretation client for the configured provider
func (cfg *config) newInterpreter(ctx context.Context) (reading.Interpreter, error) {
	switch cfg.provider {
	case providerDify:
		client, err := cfg.newDify()
		if err != nil {
			return nil, err
		}
		return client, nil

	case providerGemini:
		mode := dify.Mode(cfg.responseMode)
		if err := mode.Validate(); err != nil {
			return nil, err
		}
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		return interpreter.NewGemini(client,
			interpreter.WithStreaming(mode == dify.ModeStreaming),
			interpreter.WithTimeout(cfg.timeout),
		), nil

	default:
		return nil, goerr.New("unknown provider", goerr.V("provider", cfg.provider))
	}
}

// newStorage returns Cloud Storage when bucket is set, otherwise the local
// directory dir
func newStorage(ctx context.Context, bucket, dir string) (adapter.Storage, error) {
	if bucket == "" {
		return adapter.NewFileStorage(dir), nil
	}

	storage, err := adapter.NewStorage(ctx, bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
