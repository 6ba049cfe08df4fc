// Package oracle is a thin client for the hosted text-generation endpoint.
// The oracle itself is a black box: a prompt goes in, text comes out.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
)

type Client struct {
	http     *resty.Client
	endpoint string
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{http: httpClient, endpoint: endpoint}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// DailyHoroscope asks the oracle for today's horoscope text for a zodiac
// sign.
func (c *Client) DailyHoroscope(ctx context.Context, sign string) (string, error) {
	prompt := fmt.Sprintf(
		"Write a short, warm daily horoscope for the zodiac sign %s. Two sentences, plain text.",
		sign)
	return c.generate(ctx, prompt)
}

// Reply asks the oracle for a conversational reply to a free-form prompt.
func (c *Client) Reply(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt)
}

// Compatibility is the love-prediction verdict for a pair of zodiac signs.
type Compatibility struct {
	Percentage int    `json:"percentage"`
	Reason     string `json:"reason"`
}

// LovePrediction asks the oracle to rate the compatibility of two signs.
func (c *Client) LovePrediction(ctx context.Context, sign1, sign2 string) (*Compatibility, error) {
	prompt := fmt.Sprintf(
		"Predict love compatibility between %s and %s. Return only a JSON object with 'percentage' (number 0-100) and 'reason' (string).",
		sign1, sign2)

	reply, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var out Compatibility
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeOracle, "malformed compatibility reply")
	}
	return &out, nil
}

// SafetyVerdict reports whether free-form text crossed the moderation line.
type SafetyVerdict struct {
	Flagged bool   `json:"isInappropriate"`
	Reason  string `json:"reason"`
}

// ContentSafety moderates free-form text before it is published. Oracle
// failures fail open: a post is never blocked because the moderation
// endpoint was down.
func (c *Client) ContentSafety(ctx context.Context, text string) (*SafetyVerdict, error) {
	// Very short text skips the round trip entirely.
	if len([]rune(text)) < 3 {
		return &SafetyVerdict{}, nil
	}

	prompt := fmt.Sprintf(
		"Analyze this text for hate speech or severe harassment: %q. Return JSON with 'isInappropriate' (boolean) and 'reason' (string).",
		text)

	reply, err := c.generate(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("safety check skipped, oracle unreachable")
		return &SafetyVerdict{}, nil
	}

	var out SafetyVerdict
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		logger.Warn().Err(err).Msg("safety check skipped, malformed oracle reply")
		return &SafetyVerdict{}, nil
	}
	return &out, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if c.endpoint == "" {
		return "", apperrors.New(apperrors.ErrCodeOracle, "oracle endpoint not configured")
	}

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{Prompt: prompt}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeOracle, "oracle request failed")
	}
	if resp.IsError() {
		return "", apperrors.Newf(apperrors.ErrCodeOracle, "oracle returned status %d", resp.StatusCode())
	}
	return out.Text, nil
}
