package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP transport
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@rostermail.local"`

	// ----------------------------
	// API transport (raw message endpoint)
	// ----------------------------
	MailAPIBase   string `envconfig:"MAIL_API_BASE" default:""`
	TokenEndpoint string `envconfig:"TOKEN_ENDPOINT" default:""`
	ClientID      string `envconfig:"CLIENT_ID" default:""`
	ClientSecret  string `envconfig:"CLIENT_SECRET" default:""`
	RefreshToken  string `envconfig:"REFRESH_TOKEN" default:""`

	// ----------------------------
	// Dispatch
	// ----------------------------
	// SendInterval is the fixed spacing between successive sends in a batch.
	// The transport's rate limit is not negotiated, so the spacing stays
	// configurable rather than baked in.
	SendInterval time.Duration `envconfig:"SEND_INTERVAL" default:"400ms"`

	// ----------------------------
	// Drafts
	// ----------------------------
	DraftDir      string        `envconfig:"DRAFT_DIR" default:"drafts"`
	DraftKey      string        `envconfig:"DRAFT_KEY" default:"generator_draft_v1"`
	DraftInterval time.Duration `envconfig:"DRAFT_INTERVAL" default:"2s"`

	// ----------------------------
	// Open tracking
	// ----------------------------
	TrackingBase string `envconfig:"TRACKING_BASE" default:""`
	DatasetID    string `envconfig:"DATASET_ID" default:""`

	// ----------------------------
	// Addresses
	// ----------------------------
	FixedCcEmail string `envconfig:"FIXED_CC_EMAIL" default:""`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database (memory ledger when unset)
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
