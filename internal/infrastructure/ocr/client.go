// Package ocr is the HTTP client for the text-recognition service used on
// image uploads and image-only PDFs.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rmacedo/fiscal-audit-service/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	// Language hints the recognition model, default por.
	Language string
	// RequestsPerSecond throttles calls to the shared OCR service.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	ResilienceExec    *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	language := options.Language
	if language == "" {
		language = "por"
	}
	rps := options.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := options.Burst
	if burst <= 0 {
		burst = 2
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		executor:   options.ResilienceExec,
	}
}

type recognizeRequest struct {
	Filename string `json:"filename"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize submits the document image and returns the recognized text.
func (c *Client) Recognize(ctx context.Context, name string, content []byte) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	request := recognizeRequest{
		Filename: name,
		Language: c.language,
		Content:  base64.StdEncoding.EncodeToString(content),
	}

	var response recognizeResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/recognize", request, &response, "recognize")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ocr.recognize", call, ClassifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("recognize", err)
	}
	return response.Text, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ocr %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
