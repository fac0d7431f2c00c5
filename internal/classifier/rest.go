package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/feature"
)

// RESTClassifier queries a model server exposing a TensorFlow Serving style
// predict endpoint: POST {"instances": [tensor]} -> {"predictions": [[...]]}.
type RESTClassifier struct {
	url    string
	client *http.Client
}

type restRequest struct {
	Instances [][]feature.Vector `json:"instances"`
}

type restResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// NewRESTClassifier creates a classifier for the predict endpoint at url.
func NewRESTClassifier(url string, timeout time.Duration) (*RESTClassifier, error) {
	if url == "" {
		return nil, fmt.Errorf("model server url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Predict posts tensor as a single instance and returns its prediction.
func (c *RESTClassifier) Predict(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
	body, err := json.Marshal(restRequest{Instances: [][]feature.Vector{tensor}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out restResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("model server status %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("model server status %d", resp.StatusCode)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("expected 1 prediction, got %d", len(out.Predictions))
	}

	return out.Predictions[0], nil
}

// Close releases idle connections.
func (c *RESTClassifier) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
