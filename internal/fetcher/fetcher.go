// Package fetcher performs the evaluation network call for one fetch effect
// and classifies the result. It never retries and never returns a Go error:
// every failure collapses into one of the three resolving kinds so the state
// machine can absorb it.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TimurManjosov/goflagbag/internal/evaluation"
	"github.com/TimurManjosov/goflagbag/internal/telemetry"
)

const tracerName = "github.com/TimurManjosov/goflagbag/internal/fetcher"

// Fetcher issues evaluation requests. The HTTP client is injected so callers
// own timeouts and transport tuning; the core enforces neither.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// New creates a fetcher. A nil client falls back to http.DefaultClient.
func New(client *http.Client, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: log}
}

// Do executes exactly one evaluation request for the input and returns
// either the parsed outcome or a resolving error kind, never both.
func (f *Fetcher) Do(ctx context.Context, in evaluation.Input) (*evaluation.Outcome, evaluation.ResolvingError) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "flagbag.evaluate",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("flagbag.env_key", in.EnvKey()),
		attribute.Bool("flagbag.static", in.Body().Static),
	)

	start := time.Now()
	out, kind := f.do(ctx, in)
	duration := time.Since(start)

	result := "success"
	if kind != "" {
		result = string(kind)
		span.SetStatus(codes.Error, result)
	}
	telemetry.Evaluations.WithLabelValues(result).Inc()
	telemetry.EvaluationDuration.Observe(duration.Seconds())

	f.log.Debug().
		Str("env_key", in.EnvKey()).
		Str("result", result).
		Dur("duration", duration).
		Msg("evaluation fetch settled")

	return out, kind
}

func (f *Fetcher) do(ctx context.Context, in evaluation.Input) (*evaluation.Outcome, evaluation.ResolvingError) {
	body, err := json.Marshal(in.Body())
	if err != nil {
		// Inputs are JSON-normalized at construction, so this cannot happen
		// for any input built through evaluation.NewInput.
		f.log.Warn().Err(err).Msg("failed to marshal request body")
		return nil, evaluation.ErrNetwork
	}

	url := strings.TrimRight(in.Endpoint(), "/") + "/" + in.EnvKey()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		f.log.Warn().Err(err).Str("url", url).Msg("failed to create request")
		return nil, evaluation.ErrNetwork
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Str("url", url).Msg("evaluation request failed")
		return nil, evaluation.ErrNetwork
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("evaluation response not ok")
		return nil, evaluation.ErrResponseNotOK
	}

	var parsed evaluation.ResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		f.log.Warn().Err(err).Str("url", url).Msg("failed to decode evaluation response")
		return nil, evaluation.ErrInvalidResponseBody
	}
	if parsed.Flags == nil {
		f.log.Warn().Str("url", url).Msg("evaluation response carries no flags")
		return nil, evaluation.ErrInvalidResponseBody
	}

	return &evaluation.Outcome{Body: parsed}, ""
}
