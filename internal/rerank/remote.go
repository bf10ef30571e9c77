package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRemoteTimeout = 10 * time.Second

// Remote calls a Cohere-style rerank endpoint
// (POST {base}/rerank with query + documents, scores come back per index).
// Every failure is reported as ErrUnavailable; the service treats remote
// reranking as best-effort.
type Remote struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewRemote creates a remote reranker client. A zero timeout uses the
// default of 10 seconds.
func NewRemote(baseURL, apiKey, model string, timeout time.Duration) (*Remote, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("rerank base URL is required")
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Remote{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Scores sends all texts in one request and returns a score per text in
// input order. Transport errors, non-200 statuses, malformed responses,
// and out-of-range indices all come back wrapped in ErrUnavailable.
func (r *Remote) Scores(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: texts,
		TopN:      len(texts),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(decoded.Results) != len(texts) {
		return nil, fmt.Errorf("%w: got %d results for %d documents", ErrUnavailable, len(decoded.Results), len(texts))
	}

	scores := make([]float64, len(texts))
	for _, res := range decoded.Results {
		if res.Index < 0 || res.Index >= len(texts) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrUnavailable, res.Index)
		}
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}
