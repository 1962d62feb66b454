package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	brokerrors "deskbroker/internal/shared/errors"
)

const embeddingRequestTimeout = 10 * time.Second

// Embedder requests a fixed-dimension embedding vector for a piece of
// text from an external embedding service.
type Embedder struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewEmbedder(endpoint, apiKey string) *Embedder {
	return &Embedder{endpoint: endpoint, apiKey: apiKey, client: &http.Client{Timeout: embeddingRequestTimeout}}
}

// Enabled reports whether an endpoint was configured; callers should skip
// embedding requests entirely (not error) when it's not.
func (e *Embedder) Enabled() bool { return e.endpoint != "" }

type embeddingRequest struct {
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text, or an error if the
// service is unreachable or returns a non-2xx status.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Input: text})
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindTransport, err, "embedding request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, brokerrors.New(brokerrors.KindTransport, fmt.Sprintf("embedding service returned %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindTransport, err, "read embedding response")
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindProtocol, err, "parse embedding response")
	}
	if len(parsed.Data) == 0 {
		return nil, brokerrors.New(brokerrors.KindProtocol, "embedding response had no data")
	}
	return parsed.Data[0].Embedding, nil
}
