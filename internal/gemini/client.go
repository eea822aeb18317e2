// Package gemini calls Gemini generateContent for image enhancement and
// short image descriptions.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
	"google.golang.org/genai"
)

const (
	DefaultAPIVersion    = "v1beta"
	DefaultEnhanceModel  = "gemini-2.5-flash-image"
	DefaultDescribeModel = "gemini-3-flash-preview"

	enhancePrompt  = "Re-render this image with professional studio quality, sharp details, and high fidelity. Enhance the clarity and remove compression artifacts. Return the enhanced image directly."
	describePrompt = "Briefly describe the visual content of this image in one short sentence."
)

type Config struct {
	APIKey string
	// Endpoint overrides the SDK base URL. Empty uses the public API.
	Endpoint      string
	EnhanceModel  string
	DescribeModel string
	Timeout       time.Duration
}

type Client struct {
	cfg    Config
	genai  *genai.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.EnhanceModel == "" {
		cfg.EnhanceModel = DefaultEnhanceModel
	}
	if cfg.DescribeModel == "" {
		cfg.DescribeModel = DefaultDescribeModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := &Client{cfg: cfg, logger: logger}
	if cfg.APIKey == "" {
		return c
	}

	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.Endpoint,
			APIVersion: DefaultAPIVersion,
		},
	})
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		return c
	}
	c.genai = gc
	return c
}

// Enabled reports whether an API key is configured and the client is usable.
func (c *Client) Enabled() bool {
	return c.genai != nil
}

// Enhance asks the image model to re-render data. It returns nil bytes with a
// nil error when the model answered without an image.
func (c *Client) Enhance(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: no API key configured", domain.ErrEnhancementUnavailable)
	}

	resp, err := c.generate(ctx, c.cfg.EnhanceModel, data, mimeType, enhancePrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEnhancementUnavailable, err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			return p.InlineData.Data, nil
		}
	}

	c.logger.Debug("enhancement returned no image", "model", c.cfg.EnhanceModel)
	return nil, nil
}

// Describe returns the model's one-sentence description of data. An empty
// string means the model answered without text.
func (c *Client) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%w: no API key configured", domain.ErrEnhancementUnavailable)
	}

	resp, err := c.generate(ctx, c.cfg.DescribeModel, data, mimeType, describePrompt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func (c *Client) generate(ctx context.Context, model string, data []byte, mimeType, prompt string) (*genai.GenerateContentResponse, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", model, err)
	}
	return resp, nil
}
