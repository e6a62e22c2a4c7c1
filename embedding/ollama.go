package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllama returns a Func speaking Ollama's embeddings API.
func NewOllama(baseURL string, timeout time.Duration) (Func, error) {
	if baseURL == "" {
		return nil, errors.New("ollama url is required")
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	url := strings.TrimSuffix(baseURL, "/") + "/api/embeddings"
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, model string, text string) ([]float32, error) {
		data, err := json.Marshal(&ollamaRequest{
			Model:  model,
			Prompt: text,
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ollama request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("ollama returned %s: %s", resp.Status, string(b))
		}

		var result ollamaResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode embedding response: %w", err)
		}

		if len(result.Embedding) == 0 {
			return nil, ErrMissingEmbedding
		}

		return result.Embedding, nil
	}, nil
}
