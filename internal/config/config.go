package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting the service reads. It is constructed
// once in main and passed by reference into the server and adapters, so no
// package carries environment-derived globals.
type Config struct {
	ListenAddr    string `env:"APP_ADDR,default=:3000"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	DownloadsDir  string `env:"DOWNLOADS_DIR,default=downloads"`
	Debug         bool   `env:"DEBUG,default=false"`

	YtDlpPath  string `env:"YTDLP_PATH,default=yt-dlp"`
	FFmpegPath string `env:"FFMPEG_PATH,default=ffmpeg"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	ChatModel    string `env:"CHAT_MODEL,default=gpt-4o-mini"`

	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_SERVICE_KEY"`

	DeliveryWebhookURL string `env:"GOOGLE_DRIVE_WEBHOOK_URL"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	ProPriceID          string `env:"STRIPE_PRICE_PRO"`
	PremiumPriceID      string `env:"STRIPE_PRICE_PREMIUM"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL"`

	DownloadTimeoutSec   int `env:"DOWNLOAD_TIMEOUT,default=1200"`
	TranscribeTimeoutSec int `env:"TRANSCRIBE_TIMEOUT,default=600"`
	RequestTimeoutSec    int `env:"REQUEST_TIMEOUT,default=2700"`

	Extras env.EnvSet
}

// DownloadTimeout bounds each acquisition subprocess invocation.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSec) * time.Second
}

// TranscribeTimeout bounds each transcription API call.
func (c *Config) TranscribeTimeout() time.Duration {
	return time.Duration(c.TranscribeTimeoutSec) * time.Second
}

// RequestTimeout bounds one whole processing request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Load reads an optional .env file, then unmarshals settings from the
// process environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	extras, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal environment: %w", err)
	}
	cfg.Extras = extras

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the settings the service cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen address is required")
	}
	if strings.TrimSpace(c.DownloadsDir) == "" {
		return fmt.Errorf("downloads directory is required")
	}
	if c.DownloadTimeoutSec <= 0 || c.TranscribeTimeoutSec <= 0 || c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// HasOpenAI reports whether a transcription/chat provider key is configured.
func (c *Config) HasOpenAI() bool {
	key := strings.TrimSpace(c.OpenAIAPIKey)
	return key != "" && key != "your_openai_api_key_here"
}

// HasSupabase reports whether the persistence gateway is configured.
func (c *Config) HasSupabase() bool {
	return strings.TrimSpace(c.SupabaseURL) != "" && strings.TrimSpace(c.SupabaseKey) != ""
}

// HasDelivery reports whether the delivery webhook is configured.
func (c *Config) HasDelivery() bool {
	u := strings.TrimSpace(c.DeliveryWebhookURL)
	return u != "" && u != "your_google_drive_webhook_url_here"
}

// HasStripe reports whether the billing provider is configured.
func (c *Config) HasStripe() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

// PriceIDForTier maps a subscription tier name to its provider price ID.
// Unknown tiers return an empty string.
func (c *Config) PriceIDForTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "pro":
		return c.ProPriceID
	case "premium":
		return c.PremiumPriceID
	default:
		return ""
	}
}
