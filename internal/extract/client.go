// Package extract is the client for the out-of-process face engine.
// The engine is a black box: image in, zero or more fixed-length
// descriptors out. "No face found" is an empty list, not an error.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PradeepMolleti-09/star-shot/internal/config"
	"github.com/PradeepMolleti-09/star-shot/internal/observability"
)

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func NewClient(cfg config.FaceEngineConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		timeout: cfg.Timeout,
	}
}

type extractRequest struct {
	ImageURL string `json:"imageUrl"`
}

type extractResponse struct {
	Descriptors [][]float32 `json:"descriptors"`
}

// Extract returns one descriptor per face detected in the image.
// Transport failures, timeouts and non-2xx responses are errors;
// an image with no detectable face returns an empty slice and nil.
func (c *Client) Extract(ctx context.Context, imageURL string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(extractRequest{ImageURL: imageURL})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("call face engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("face engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}

	if err := validateDescriptors(out.Descriptors); err != nil {
		return nil, fmt.Errorf("face engine response: %w", err)
	}

	return out.Descriptors, nil
}

// validateDescriptors checks that every descriptor in one response has
// the same non-zero length. Mixed lengths mean the engine is broken,
// not that a face is absent.
func validateDescriptors(descriptors [][]float32) error {
	if len(descriptors) == 0 {
		return nil
	}
	dim := len(descriptors[0])
	if dim == 0 {
		return fmt.Errorf("empty descriptor")
	}
	for i, d := range descriptors {
		if len(d) != dim {
			return fmt.Errorf("descriptor %d has length %d, expected %d", i, len(d), dim)
		}
	}
	return nil
}

// Ping probes the engine's health endpoint. Model loading happens once
// at engine startup, so readiness here means the models are loaded and
// the first extraction will not pay a lazy-init penalty.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("face engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face engine not ready: status %d", resp.StatusCode)
	}
	return nil
}
