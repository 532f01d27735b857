package config

import (
	"fmt"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key validation (required for all AI operations)
	if c.APIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Model configuration validation
	for name, model := range map[string]string{
		"chat_model":  c.ChatModel,
		"title_model": c.TitleModel,
		"image_model": c.ImageModel,
		"video_model": c.VideoModel,
	} {
		if model == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidModelName, name)
		}
	}

	// 3. Storage validation
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", ErrInvalidDataDir)
	}

	if c.MaxHistoryMessages < 1 || c.MaxHistoryMessages > MaxAllowedHistoryMessages {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidHistoryLimit, MaxAllowedHistoryMessages, c.MaxHistoryMessages)
	}

	// 4. Video polling validation.
	// The lower bound keeps the poll loop from hammering the operations
	// endpoint; the upper bound keeps a finished video from sitting
	// unnoticed for minutes.
	if c.VideoPollInitialDelay < time.Second || c.VideoPollInitialDelay > 5*time.Minute {
		return fmt.Errorf("%w: initial delay must be between 1s and 5m, got %s",
			ErrInvalidPollInterval, c.VideoPollInitialDelay)
	}
	if c.VideoPollInterval < time.Second || c.VideoPollInterval > 5*time.Minute {
		return fmt.Errorf("%w: interval must be between 1s and 5m, got %s",
			ErrInvalidPollInterval, c.VideoPollInterval)
	}

	// 5. Outbound rate limit validation
	if c.RequestsPerSecond <= 0 || c.RequestsPerSecond > 1000 {
		return fmt.Errorf("%w: requests_per_second must be between 0 and 1000, got %.2f",
			ErrInvalidRateLimit, c.RequestsPerSecond)
	}
	if c.RequestBurst < 1 || c.RequestBurst > 10000 {
		return fmt.Errorf("%w: request_burst must be between 1 and 10,000, got %d",
			ErrInvalidRateLimit, c.RequestBurst)
	}

	return nil
}
