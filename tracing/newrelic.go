package tracing

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/keeptend/assistant"
	"example.com/keeptend/config"
)

// NewApplication starts the New Relic agent. Without a license key tracing
// is disabled and the returned application is nil.
func NewApplication(cfg config.Config) (*newrelic.Application, error) {
	if cfg.NewRelicLicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing will be disabled")
		return nil, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelicAppName),
		newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}

	log.Info().Str("app", cfg.NewRelicAppName).Msg("New Relic tracing enabled")
	return app, nil
}

// Shutdown flushes pending data. A nil application is ignored.
func Shutdown(app *newrelic.Application, timeout time.Duration) {
	if app == nil {
		return
	}
	app.Shutdown(timeout)
}

// Generator records every generation call as a segment of the transaction
// carried by the context, if any
func Generator(g assistant.Generator) assistant.Generator {
	return assistant.GeneratorFunc(func(ctx context.Context, req assistant.Request) (assistant.Response, error) {
		txn := newrelic.FromContext(ctx)
		segment := txn.StartSegment("assistant.Generate")
		defer segment.End()

		res, err := g.Generate(ctx, req)
		if err != nil {
			txn.NoticeError(err)
			txn.AddAttribute("assistant.failure", string(assistant.KindOf(err)))
		}
		return res, err
	})
}
