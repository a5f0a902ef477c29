package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

var (
	validKinds      = []string{"image", "video", "audio"}
	validTiers      = []string{"standard", "premium"}
	validLogFormats = []string{"console", "json"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateCredits(); err != nil {
		return err
	}
	if err := c.validateTiers(); err != nil {
		return err
	}
	if err := c.validatePricing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.BaseURL != "" {
		parsed, err := url.Parse(c.Generation.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("generation.base_url %q must be an absolute URL", c.Generation.BaseURL)
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"generation.timeout_seconds":  c.Generation.TimeoutSeconds,
		"generation.deadline_seconds": c.Generation.DeadlineSeconds,
		"generation.retry_attempts":   c.Generation.RetryAttempts,
	}); err != nil {
		return err
	}
	if c.Generation.DeadlineSeconds < c.Generation.TimeoutSeconds {
		return errors.New("generation.deadline_seconds must be at least generation.timeout_seconds")
	}
	return nil
}

func (c *Config) validateCredits() error {
	if c.Credits.InitialBalance < 0 {
		return errors.New("credits.initial_balance must be >= 0")
	}
	return nil
}

func (c *Config) validateTiers() error {
	for name, limits := range map[string]TierLimits{
		"standard": c.Tiers.Standard,
		"premium":  c.Tiers.Premium,
	} {
		if limits.MaxReferences < 0 {
			return fmt.Errorf("tiers.%s.max_references must be >= 0", name)
		}
		if !slices.Contains(Resolutions, limits.MaxResolution) {
			return fmt.Errorf("tiers.%s.max_resolution %q must be one of %v", name, limits.MaxResolution, Resolutions)
		}
	}
	return nil
}

func (c *Config) validatePricing() error {
	seen := make(map[string]struct{}, len(c.Pricing))
	for i, entry := range c.Pricing {
		if !slices.Contains(validKinds, entry.Kind) {
			return fmt.Errorf("pricing[%d].kind %q must be one of %v", i, entry.Kind, validKinds)
		}
		if !slices.Contains(validTiers, entry.Tier) {
			return fmt.Errorf("pricing[%d].tier %q must be one of %v", i, entry.Tier, validTiers)
		}
		if entry.Credits < 0 {
			return fmt.Errorf("pricing[%d].credits must be >= 0", i)
		}
		key := entry.Kind + "/" + entry.Tier
		if _, dup := seen[key]; dup {
			return fmt.Errorf("pricing has duplicate entry for %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("logging.format %q must be one of %v", c.Logging.Format, validLogFormats)
	}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of %v", c.Logging.Level, validLogLevels)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
