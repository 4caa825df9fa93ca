package gtmfactory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/milehighfry405/gtm-factory-sub000/analyst"
	"github.com/milehighfry405/gtm-factory-sub000/artifact"
	"github.com/milehighfry405/gtm-factory-sub000/config"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/dispatch"
	"github.com/milehighfry405/gtm-factory-sub000/engine"
	"github.com/milehighfry405/gtm-factory-sub000/extract"
	"github.com/milehighfry405/gtm-factory-sub000/index"
	"github.com/milehighfry405/gtm-factory-sub000/logging"
	"github.com/milehighfry405/gtm-factory-sub000/memory"
	"github.com/milehighfry405/gtm-factory-sub000/memory/sqlite"
	"github.com/milehighfry405/gtm-factory-sub000/model"
	anthropicmodel "github.com/milehighfry405/gtm-factory-sub000/model/anthropic"
	openaimodel "github.com/milehighfry405/gtm-factory-sub000/model/openai"
	"github.com/milehighfry405/gtm-factory-sub000/planner"
	"github.com/milehighfry405/gtm-factory-sub000/session"
	"github.com/milehighfry405/gtm-factory-sub000/synthesis"
	"github.com/milehighfry405/gtm-factory-sub000/worker"
)

// MockFindings is what the mock provider answers every mission with.
const MockFindings = `{"claims": [], "gaps": ["mock provider: no research was performed"]}`

// NewFromConfig builds a Factory from configuration: a file-backed session
// store under cfg.Store.Root, the configured catalog and model, and engine
// components tuned by the planner, dispatcher, synthesis and index sections.
// optFns run last and may override any of it. Call Close when done.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var closers []func() error
	fail := func(err error) (*Factory, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	logger, closeLog, err := NewLogger(cfg.Logging)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeLog)

	blobs := artifact.NewFileStore(cfg.Store.Root)
	store := session.New(blobs, func(o *session.Options) {
		if cfg.Store.CacheTTL != 0 {
			o.CacheTTL = cfg.Store.CacheTTL
		}
		o.Logger = logger
	})

	var catalog core.Catalog = memory.NewInMemoryStore()
	if cfg.Index.Catalog == config.CatalogSQLite {
		db, err := sqlite.New(cfg.Index.Path, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return fail(fmt.Errorf("open catalog: %w", err))
		}
		closers = append(closers, db.Close)
		catalog = db
	}

	m := NewModel(cfg.Model)
	w := worker.NewModelWorker(m, func(o *worker.Options) {
		o.CostPer1KTokens = cfg.Model.CostPer1KTokens
		o.Logger = logger
	})

	indexer := index.New(func(o *index.Options) {
		o.MaxFindings = cfg.Index.MaxFindings
		o.Logger = logger
	})
	plan := planner.New(func(o *planner.Options) {
		o.MaxWorkers = cfg.Planner.MaxWorkers
		o.MaxUnknown = cfg.Planner.MaxUnknown
		o.TokenBudget = cfg.Planner.TokenBudget
		o.Timeout = cfg.Planner.MissionTimeout
		o.RelatedLimit = cfg.Planner.RelatedLimit
		o.Catalog = catalog
		o.Indexer = indexer
		o.Logger = logger
	})
	disp := dispatch.New(w, func(o *dispatch.Options) {
		o.MaxParallel = cfg.Dispatcher.MaxParallel
		o.DefaultTimeout = cfg.Planner.MissionTimeout
		o.Backoff = cfg.Dispatcher.Backoff
		o.Logger = logger
	})
	synth := synthesis.New(func(o *synthesis.Options) {
		o.Rater = Rater(cfg.Synthesis.SourcePolicy)
		o.Logger = logger
	})
	var extractor extract.Extractor = extract.Heuristic{}
	if cfg.Model.ExtractWithModel {
		extractor = extract.NewModel(m, func(o *extract.ModelOptions) { o.Logger = logger })
	}
	var critic analyst.Analyst = analyst.Heuristic{}
	if cfg.Model.AnalyzeWithModel {
		critic = analyst.NewModel(m, func(o *analyst.ModelOptions) { o.Logger = logger })
	}

	f := New(w, append([]func(o *Options){func(o *Options) {
		o.SessionStore = store
		o.ArtifactStore = blobs
		o.Catalog = catalog
		o.Logger = logger
		o.Engine = append(o.Engine, func(eo *engine.Options) {
			eo.Extractor = extractor
			eo.Analyst = critic
			eo.Planner = plan
			eo.Dispatcher = disp
			eo.Synthesizer = synth
			eo.Indexer = indexer
		})
	}}, optFns...)...)
	f.closers = closers
	return f, nil
}

// NewModel returns the language model named by cfg.
func NewModel(cfg config.ModelConfig) model.Model {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		})
	case config.ProviderMock:
		mock := model.NewMockModel("mock", config.ProviderMock)
		mock.SetDefault(MockFindings)
		return mock
	default:
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		})
	}
}

// Rater returns the source rater for a synthesis source policy. The
// "reported" policy rates every source High, so only a missing source caps
// a claim.
func Rater(policy string) synthesis.SourceRater {
	if policy == config.SourcePolicyReported {
		return synthesis.SourceRaterFunc(func(string) core.Confidence { return core.ConfidenceHigh })
	}
	return synthesis.URLRater
}

// NewLogger builds the configured logger and a function that flushes and
// releases it. Without a file, logs go to stderr through slog; with one, zap
// writes rotated JSON files.
func NewLogger(cfg config.LoggingConfig) (logging.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		return logging.NewSlogLogger(level, cfg.Format, false), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	z := logging.NewRotatingZapLogger(logging.RotationConfig{
		Filename:   cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		Console:    cfg.Console,
	}, level)
	return z, func() error { _ = z.Sync(); return nil }, nil
}
