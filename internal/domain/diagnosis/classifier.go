package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eyedx/eyedx/internal/domain/intake"
)

const maxResponseBytes = 1 << 20

// Outcome is what a classification attempt produced. When Fallback is set,
// Result and RawText come from the fallback policy and Warning says why.
type Outcome struct {
	RawText  string
	Result   ClassificationResult
	Fallback bool
	Warning  error
}

// Classifier turns an intake into a classification. Implementations never
// fail; degraded answers are reported through Outcome.Fallback.
type Classifier interface {
	Classify(ctx context.Context, p intake.PatientIntake) Outcome
}

// ClassificationObserver receives one observation per classifier call.
type ClassificationObserver interface {
	ObserveClassification(outcome string, d time.Duration)
}

// HTTPClassifier posts the intake to a remote model endpoint.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	fallback FallbackPolicy
	logger   zerolog.Logger
	observer ClassificationObserver
}

type ClassifierOption func(*HTTPClassifier)

func WithHTTPClient(c *http.Client) ClassifierOption {
	return func(hc *HTTPClassifier) { hc.client = c }
}

// WithTimeout bounds each call. Zero leaves the transport defaults in charge.
func WithTimeout(d time.Duration) ClassifierOption {
	return func(hc *HTTPClassifier) { hc.timeout = d }
}

func WithFallback(p FallbackPolicy) ClassifierOption {
	return func(hc *HTTPClassifier) { hc.fallback = p }
}

func WithLogger(l zerolog.Logger) ClassifierOption {
	return func(hc *HTTPClassifier) { hc.logger = l }
}

func WithObserver(o ClassificationObserver) ClassifierOption {
	return func(hc *HTTPClassifier) { hc.observer = o }
}

func NewHTTPClassifier(endpoint string, opts ...ClassifierOption) *HTTPClassifier {
	hc := &HTTPClassifier{
		endpoint: endpoint,
		client:   http.DefaultClient,
		fallback: DefaultFallback(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

func (hc *HTTPClassifier) Classify(ctx context.Context, p intake.PatientIntake) Outcome {
	start := time.Now()
	raw, result, err := hc.call(ctx, p)
	elapsed := time.Since(start)

	if err == nil {
		hc.observe("success", elapsed)
		return Outcome{RawText: raw, Result: result}
	}

	hc.observe(outcomeLabel(err), elapsed)
	hc.logger.Warn().Err(err).
		Str("endpoint", hc.endpoint).
		Dur("elapsed", elapsed).
		Msg("classifier unavailable, using fallback result")

	return Outcome{
		RawText:  hc.fallback.RawText(),
		Result:   hc.fallback.Result.clone(),
		Fallback: true,
		Warning:  err,
	}
}

func (hc *HTTPClassifier) call(ctx context.Context, p intake.PatientIntake) (string, ClassificationResult, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", ClassificationResult{}, fmt.Errorf("%w: encode intake: %v", ErrNetwork, err)
	}

	if hc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", ClassificationResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.client.Do(req)
	if err != nil {
		return "", ClassificationResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", ClassificationResult{}, &ServerError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", ClassificationResult{}, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	raw := string(data)
	result, err := ParseClassification(raw)
	if err != nil {
		return "", ClassificationResult{}, err
	}
	return raw, result, nil
}

func (hc *HTTPClassifier) observe(outcome string, d time.Duration) {
	if hc.observer != nil {
		hc.observer.ObserveClassification(outcome, d)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "network"
	}
}

// ParseClassification decodes a classifier response body. It is also used to
// re-read the raw text stored on a record.
func ParseClassification(raw string) (ClassificationResult, error) {
	var res ClassificationResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return ClassificationResult{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(res.Labels) == 0 {
		return ClassificationResult{}, fmt.Errorf("%w: no labels", ErrParse)
	}
	if len(res.Labels) != len(res.Probabilities) {
		return ClassificationResult{}, fmt.Errorf("%w: %d labels but %d probabilities",
			ErrParse, len(res.Labels), len(res.Probabilities))
	}
	if _, ok := res.Probability(res.PredictedLabel); !ok {
		return ClassificationResult{}, fmt.Errorf("%w: predicted label %q is not among the labels",
			ErrParse, res.PredictedLabel)
	}
	return res, nil
}
