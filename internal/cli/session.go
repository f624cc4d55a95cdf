package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/open-verix/timeproof/internal/config"
	"github.com/open-verix/timeproof/internal/logging"
	"github.com/open-verix/timeproof/internal/metrics"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/publish"
	"github.com/open-verix/timeproof/internal/transport"
)

// session is the per-invocation wiring shared by commands that reach the
// network: one config, one logger, one metrics registry, one pair of clients.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	clients *transport.Clients
}

// loadConfig loads the project configuration and applies the global flag
// overrides. The result is validated.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSession builds the session for cfg. Callers must call close.
func newSession(cfg *config.Config) (*session, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	m := metrics.New()
	clients := transport.NewClients(transport.Options{
		OraclePolicy:  cfg.Retry.Oracle.Policy(),
		PublishPolicy: cfg.Retry.Publish.Policy(),
		Logger:        logger,
		OnRetry:       m.ObserveRetry,
	})

	return &session{cfg: cfg, logger: logger, metrics: m, clients: clients}, nil
}

func (r *session) oracleOptions() []oracle.Option {
	return []oracle.Option{
		oracle.WithLogger(r.logger),
		oracle.WithObserver(r.metrics.ObserveSource),
	}
}

func (r *session) timeOracle() (*oracle.TimeOracle, error) {
	return oracle.NewTimeOracle(r.clients.Oracle, r.cfg.TimeSources(), r.oracleOptions()...)
}

func (r *session) quoteSource() *oracle.QuoteSource {
	return oracle.NewQuoteSource(r.clients.Oracle, r.cfg.Quotes.Endpoint, r.cfg.Quotes.Timeout, r.oracleOptions()...)
}

func (r *session) publishVerifier() *publish.Verifier {
	return publish.NewVerifier(r.clients.Publish, publish.Options{
		HeadTimeout: r.cfg.Publish.HeadTimeout,
		GetTimeout:  r.cfg.Publish.GetTimeout,
		Concurrency: r.cfg.Concurrency,
		Logger:      r.logger,
	})
}

// close flushes the logger and exports metrics if a textfile is configured.
func (r *session) close() {
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := r.metrics.WriteTextfile(path); err != nil {
			r.logger.Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}
