package config

const (
	defaultDataDir          = "~/.local/share/atelier"
	defaultAssetDir         = "~/.local/share/atelier/assets"
	defaultTimeoutSeconds   = 120
	defaultDeadlineSeconds  = 600
	defaultRetryAttempts    = 3
	defaultSyntheticDelayMS = 250
	defaultInitialBalance   = 250
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	databaseFileName        = "atelier.db"
	configDirName           = "atelier"
	projectConfigName       = "atelier.toml"
	envAPIKey               = "ATELIER_API_KEY"
	envBaseURL              = "ATELIER_BASE_URL"
)

var defaultTiers = Tiers{
	Standard: TierLimits{MaxReferences: 1, MaxResolution: "720p"},
	Premium:  TierLimits{MaxReferences: 3, MaxResolution: "1080p"},
}

var defaultPricing = []PriceEntry{
	{Kind: "image", Tier: "standard", Credits: 10},
	{Kind: "image", Tier: "premium", Credits: 25},
	{Kind: "video", Tier: "standard", Credits: 100},
	{Kind: "video", Tier: "premium", Credits: 250},
	{Kind: "audio", Tier: "standard", Credits: 20},
	{Kind: "audio", Tier: "premium", Credits: 40},
}

// Resolutions lists the supported output resolutions, lowest first.
var Resolutions = []string{"480p", "720p", "1080p", "1440p", "2160p"}

// AspectRatios lists the supported output aspect ratios.
var AspectRatios = []string{"16:9", "9:16", "1:1", "4:3", "3:4"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AssetDir: defaultAssetDir,
		},
		Generation: Generation{
			TimeoutSeconds:   defaultTimeoutSeconds,
			DeadlineSeconds:  defaultDeadlineSeconds,
			RetryAttempts:    defaultRetryAttempts,
			SyntheticDelayMS: defaultSyntheticDelayMS,
		},
		Credits: Credits{
			InitialBalance: defaultInitialBalance,
		},
		Tiers: defaultTiers,
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// DefaultPricing returns a copy of the built-in pricing table.
func DefaultPricing() []PriceEntry {
	out := make([]PriceEntry, len(defaultPricing))
	copy(out, defaultPricing)
	return out
}
