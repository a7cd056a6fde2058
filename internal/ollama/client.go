// Package ollama is an HTTP client for a local Ollama server. Text
// generation is serialized process-wide so only one model is resident
// in memory at a time.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"taxray/internal/logging"
)

const (
	defaultHost       = "http://localhost:11434"
	maxRetries        = 3
	baseRetryDelay    = 2 * time.Second
	defaultGenTimeout = 5 * time.Minute
)

// Options are generation parameters passed through to Ollama.
type Options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

// DefaultOptions returns the generation parameters used for tax analysis.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.7,
		NumPredict:    1024,
		TopK:          40,
		TopP:          0.9,
		RepeatPenalty: 1.1,
	}
}

// Client talks to an Ollama server. The zero value is not usable; use New.
type Client struct {
	host       string
	httpClient *http.Client

	// genMu serializes Generate calls so large models never load concurrently
	genMu sync.Mutex
}

// New creates a client for the given host. An empty host uses localhost:11434.
func New(host string, genTimeout time.Duration) *Client {
	if host == "" {
		host = defaultHost
	}
	host = strings.TrimRight(host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if genTimeout <= 0 {
		genTimeout = defaultGenTimeout
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: genTimeout,
		},
	}
}

// Host returns the server address this client talks to.
func (c *Client) Host() string {
	return c.host
}

// Version returns the server version string, or an error if unreachable.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/version", &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// ModelInfo describes an installed model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// HasModel reports whether the named model is installed. Tags are matched
// loosely: "llama3" matches "llama3:8b".
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	base := strings.SplitN(name, ":", 2)[0]
	for _, m := range models {
		if m.Name == name || strings.SplitN(m.Name, ":", 2)[0] == base {
			return true, nil
		}
	}
	return false, nil
}

// PullProgress reports streamed pull status.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
}

// Pull downloads a model, invoking onProgress for each status line.
// onProgress may be nil.
func (c *Client) Pull(ctx context.Context, name string, onProgress func(PullProgress)) error {
	logging.Ollama("Pulling model %s", name)

	reqBody, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("marshaling pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/pull", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// pulls can run far longer than generation
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pull returned status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var progress PullProgress
		if err := json.Unmarshal(line, &progress); err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(progress.Status), "error") {
			return fmt.Errorf("pull failed: %s", progress.Status)
		}
		if onProgress != nil {
			onProgress(progress)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading pull stream: %w", err)
	}

	logging.Ollama("Pull complete: %s", name)
	return nil
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// GenerateResult holds a completed generation with token accounting.
type GenerateResult struct {
	Model            string
	Response         string
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Generate runs a prompt against a model and returns the full response.
// Calls are serialized: a second Generate blocks until the first finishes,
// which keeps at most one model loaded at a time. Retries with exponential
// backoff on HTTP 429 and transient server errors.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts Options) (*GenerateResult, error) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	timer := logging.StartTimer(logging.CategoryOllama, "Generate:"+model)
	defer timer.Stop()

	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt-1)))
			logging.Ollama("Generate retry %d/%d for %s after %v: %v",
				attempt, maxRetries-1, model, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, retryable, err := c.generateOnce(ctx, model, prompt, opts)
		if err == nil {
			result.Duration = time.Since(start)
			logging.Ollama("Generate complete: model=%s tokens=%d/%d duration=%v",
				model, result.PromptTokens, result.CompletionTokens, result.Duration)
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("generate failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, model, prompt string, opts Options) (*GenerateResult, bool, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, true, fmt.Errorf("generate returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, false, fmt.Errorf("generate returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, true, fmt.Errorf("decoding generate response: %w", err)
	}
	if genResp.Error != "" {
		return nil, false, fmt.Errorf("generate error from server: %s", genResp.Error)
	}

	return &GenerateResult{
		Model:            model,
		Response:         genResp.Response,
		PromptTokens:     genResp.PromptEvalCount,
		CompletionTokens: genResp.EvalCount,
	}, false, nil
}

// GenerateStream runs a prompt and invokes onToken for each response chunk.
// Serialized the same way as Generate. Returns the assembled result.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, opts Options, onToken func(string)) (*GenerateResult, error) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	start := time.Now()

	reqBody, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  true,
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generate returned status %d: %s", resp.StatusCode, string(body))
	}

	var full strings.Builder
	result := &GenerateResult{Model: model}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("generate error from server: %s", chunk.Error)
		}
		full.WriteString(chunk.Response)
		if onToken != nil && chunk.Response != "" {
			onToken(chunk.Response)
		}
		if chunk.Done {
			result.PromptTokens = chunk.PromptEvalCount
			result.CompletionTokens = chunk.EvalCount
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading generate stream: %w", err)
	}

	result.Response = full.String()
	result.Duration = time.Since(start)
	return result, nil
}

// Embed generates an embedding through the same server.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]string{
		"model":  model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	return embedResp.Embedding, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama server unreachable at %s: %w", c.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
