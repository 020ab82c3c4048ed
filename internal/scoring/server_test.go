package scoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storm-importance/internal/imagery"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RoundTripWithRemoteScorer(t *testing.T) {
	model := &LogisticModel{
		Predictors: []string{"refl", "temp"},
		Rows:       1,
		Columns:    2,
		Weights:    []float64{0.5, -0.5, 0.25, 0},
		Bias:       0.1,
	}
	server := httptest.NewServer(NewServer(model, 0, time.Second).Handler())
	defer server.Close()

	remote := NewRemote(server.URL, nil, time.Second)
	info, err := remote.LoadInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"refl", "temp"}, info.Predictors)
	assert.Equal(t, 1, info.Rows)
	assert.Equal(t, 2, info.Columns)
	assert.Equal(t, []string{"refl", "temp"}, remote.PredictorNames())

	set, err := imagery.New([]string{"refl", "temp"}, 1, 2, []float64{
		1, 2, 3, 4,
		-1, 0.5, 2, 8,
	})
	require.NoError(t, err)

	want, err := model.Score(context.Background(), set)
	require.NoError(t, err)
	got, err := remote.Score(context.Background(), set)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-12)
}

func TestServer_Errors(t *testing.T) {
	model := &LogisticModel{Predictors: []string{"refl"}, Rows: 1, Columns: 1, Weights: []float64{1}}
	server := httptest.NewServer(NewServer(model, 0, time.Second).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/score")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(server.URL+"/score", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Channels the model was not trained on fail scoring.
	_, err = NewRemote(server.URL, nil, time.Second).Score(context.Background(), newSet(t, 2, "temp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRemoteScorer_RateLimitHonorsContext(t *testing.T) {
	model := &LogisticModel{Predictors: []string{"refl"}, Rows: 1, Columns: 1, Weights: []float64{1}}
	server := httptest.NewServer(NewServer(model, 0, time.Second).Handler())
	defer server.Close()

	remote := NewRemote(server.URL, nil, time.Second).SetRateLimit(0.001, 1)
	set := newSet(t, 2, "refl")

	_, err := remote.Score(context.Background(), set)
	require.NoError(t, err, "first request fits the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = remote.Score(ctx, set)
	assert.Error(t, err, "second request must wait far longer than the deadline")

	_, err = remote.SetRateLimit(0, 0).Score(context.Background(), set)
	assert.NoError(t, err)
}
