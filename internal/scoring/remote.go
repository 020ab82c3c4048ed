package scoring

import (
	"context"
	"fmt"
	"time"

	"storm-importance/internal/imagery"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// RemoteScorer sends batches to an HTTP inference service. The service
// receives the example set as JSON on POST {base}/score and answers with
// {"probabilities": [...]}.
type RemoteScorer struct {
	base       string
	predictors []string
	rest       *resty.Client
	limiter    *rate.Limiter
}

type scoreResp struct {
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// NewRemote creates a scorer for the service at base. predictors, when
// non-nil, declares the channels the remote model was trained on.
func NewRemote(base string, predictors []string, timeout time.Duration) *RemoteScorer {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	return &RemoteScorer{base: base, predictors: predictors, rest: r}
}

// SetRateLimit caps requests to perSecond with the given burst. A
// non-positive perSecond removes the limit.
func (s *RemoteScorer) SetRateLimit(perSecond float64, burst int) *RemoteScorer {
	if perSecond <= 0 {
		s.limiter = nil
		return s
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	return s
}

func (s *RemoteScorer) PredictorNames() []string {
	return s.predictors
}

func (s *RemoteScorer) Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("remote scorer: %w", err)
		}
	}

	resp := &scoreResp{}
	httpResp, err := s.rest.R().
		SetContext(ctx).
		SetBody(batch).
		SetResult(resp).
		SetError(resp).
		Post(s.base + "/score")
	if err != nil {
		return nil, fmt.Errorf("remote scorer: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("remote scorer: %d %s", httpResp.StatusCode(), resp.Error)
	}
	if len(resp.Probabilities) != batch.NumExamples() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrOutputLength, batch.NumExamples(), len(resp.Probabilities))
	}
	return resp.Probabilities, nil
}

// LoadInfo asks the service which predictors its model expects and
// declares them on s.
func (s *RemoteScorer) LoadInfo(ctx context.Context) (*ModelInfo, error) {
	info := &ModelInfo{}
	httpResp, err := s.rest.R().
		SetContext(ctx).
		SetResult(info).
		Get(s.base + "/model/info")
	if err != nil {
		return nil, fmt.Errorf("remote scorer: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("remote scorer: model info returned %d", httpResp.StatusCode())
	}
	if len(info.Predictors) > 0 {
		s.predictors = info.Predictors
	}
	return info, nil
}
