package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeTiers()
	c.normalizePricing()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		c.Paths.AssetDir = defaultAssetDir
	}
	if c.Paths.AssetDir, err = expandPath(c.Paths.AssetDir); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv(envAPIKey); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimSpace(c.Generation.BaseURL)
	if c.Generation.BaseURL == "" {
		if value, ok := os.LookupEnv(envBaseURL); ok {
			c.Generation.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Generation.BaseURL = strings.TrimRight(c.Generation.BaseURL, "/")
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Generation.DeadlineSeconds <= 0 {
		c.Generation.DeadlineSeconds = defaultDeadlineSeconds
	}
	if c.Generation.RetryAttempts <= 0 {
		c.Generation.RetryAttempts = defaultRetryAttempts
	}
	if c.Generation.SyntheticDelayMS < 0 {
		c.Generation.SyntheticDelayMS = 0
	}
}

func (c *Config) normalizeTiers() {
	normalizeTier(&c.Tiers.Standard, defaultTiers.Standard)
	normalizeTier(&c.Tiers.Premium, defaultTiers.Premium)
}

func normalizeTier(limits *TierLimits, fallback TierLimits) {
	limits.MaxResolution = strings.ToLower(strings.TrimSpace(limits.MaxResolution))
	if limits.MaxResolution == "" {
		limits.MaxResolution = fallback.MaxResolution
	}
	if limits.MaxReferences == 0 {
		limits.MaxReferences = fallback.MaxReferences
	}
}

func (c *Config) normalizePricing() {
	if len(c.Pricing) == 0 {
		c.Pricing = DefaultPricing()
		return
	}
	for i := range c.Pricing {
		c.Pricing[i].Kind = strings.ToLower(strings.TrimSpace(c.Pricing[i].Kind))
		c.Pricing[i].Tier = strings.ToLower(strings.TrimSpace(c.Pricing[i].Tier))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
