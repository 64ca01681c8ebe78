package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full engine configuration, read from environment
// variables (secrets and service endpoints) and an optional YAML file
// (operational tunables). Environment wins over file, file over
// defaults.
type Config struct {
	// Data portal
	DataportalURL       string
	DataportalPublicURL string

	// Object store facade
	StorageServiceURL      string
	StorageServiceUser     string
	StorageServicePassword string

	// PID service
	PIDServiceURL     string
	PIDServiceTestEnv bool

	// Freeze policy
	FreezeAfterDays      int
	FreezeModelAfterDays int

	// DVAS federation
	DvasPortalURL   string
	DvasAccessToken string
	DvasUsername    string
	DvasPassword    string

	// Slack alerting (optional)
	SlackAPIToken  string
	SlackChannelID string

	// Data submission credentials (portal mutations)
	DataSubmissionUsername string
	DataSubmissionPassword string

	Tunables Tunables
}

// Tunables are the non-secret operational knobs. They may come from a
// YAML file so operators can adjust them without touching secrets.
type Tunables struct {
	// HTTPTimeout bounds every single HTTP call.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// RetryMaxAttempts caps retries of transient HTTP failures.
	RetryMaxAttempts uint64 `yaml:"retry_max_attempts"`

	// PollInterval is the idle wait after an empty queue receive.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxTasks bounds tasks per worker process before self-restart.
	MaxTasks int `yaml:"max_tasks"`

	// ChecksumGrace is the window after a file's last update during
	// which a storage checksum mismatch is only a warning. The backend
	// checksum may lag for just-uploaded files.
	ChecksumGrace time.Duration `yaml:"checksum_grace"`

	// ListenAddr is the health and metrics HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// ToolboxBinary is the scientific transformation toolbox command.
	ToolboxBinary string `yaml:"toolbox_binary"`

	// ToolboxTimeout bounds one transform, plot or QC invocation.
	ToolboxTimeout time.Duration `yaml:"toolbox_timeout"`

	// TempDir is the parent for per-task scratch directories.
	// Empty means the system default.
	TempDir string `yaml:"temp_dir"`
}

// DefaultTunables returns the built-in operational defaults
func DefaultTunables() Tunables {
	return Tunables{
		HTTPTimeout:      2 * time.Minute,
		RetryMaxAttempts: 5,
		PollInterval:     10 * time.Second,
		MaxTasks:         100,
		ChecksumGrace:    15 * time.Minute,
		ListenAddr:       ":8090",
		ToolboxBinary:    "cloudnet-toolbox",
		ToolboxTimeout:   30 * time.Minute,
	}
}

// Load reads configuration from the environment, loading a .env file
// first if one exists, and overlays tunables from the YAML file at
// tunablesPath when non-empty.
func Load(tunablesPath string) (*Config, error) {
	// Missing .env is fine; explicit environment always wins because
	// godotenv never overrides existing variables.
	_ = godotenv.Load()

	cfg := &Config{
		DataportalURL:          strings.TrimSuffix(os.Getenv("DATAPORTAL_URL"), "/"),
		DataportalPublicURL:    strings.TrimSuffix(os.Getenv("DATAPORTAL_PUBLIC_URL"), "/"),
		StorageServiceURL:      strings.TrimSuffix(os.Getenv("STORAGE_SERVICE_URL"), "/"),
		StorageServiceUser:     os.Getenv("STORAGE_SERVICE_USER"),
		StorageServicePassword: os.Getenv("STORAGE_SERVICE_PASSWORD"),
		PIDServiceURL:          strings.TrimSuffix(os.Getenv("PID_SERVICE_URL"), "/"),
		PIDServiceTestEnv:      os.Getenv("PID_SERVICE_TEST_ENV") != "",
		DvasPortalURL:          strings.TrimSuffix(os.Getenv("DVAS_PORTAL_URL"), "/"),
		DvasAccessToken:        os.Getenv("DVAS_ACCESS_TOKEN"),
		DvasUsername:           os.Getenv("DVAS_USERNAME"),
		DvasPassword:           os.Getenv("DVAS_PASSWORD"),
		SlackAPIToken:          os.Getenv("SLACK_API_TOKEN"),
		SlackChannelID:         os.Getenv("SLACK_CHANNEL_ID"),
		DataSubmissionUsername: os.Getenv("DATA_SUBMISSION_USERNAME"),
		DataSubmissionPassword: os.Getenv("DATA_SUBMISSION_PASSWORD"),
		Tunables:               DefaultTunables(),
	}

	var err error
	if cfg.FreezeAfterDays, err = intEnv("FREEZE_AFTER_DAYS", 3); err != nil {
		return nil, err
	}
	if cfg.FreezeModelAfterDays, err = intEnv("FREEZE_MODEL_AFTER_DAYS", 4); err != nil {
		return nil, err
	}

	if tunablesPath != "" {
		if err := cfg.Tunables.loadFile(tunablesPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.Tunables.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.DataportalPublicURL == "" {
		cfg.DataportalPublicURL = derivePublicURL(cfg.DataportalURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every command needs. Credentials for
// optional collaborators (DVAS, Slack, PID service) are checked by the
// components that require them.
func (c *Config) Validate() error {
	if c.DataportalURL == "" {
		return fmt.Errorf("DATAPORTAL_URL is not set")
	}
	if c.StorageServiceURL == "" {
		return fmt.Errorf("STORAGE_SERVICE_URL is not set")
	}
	if c.FreezeAfterDays < 0 || c.FreezeModelAfterDays < 0 {
		return fmt.Errorf("freeze delays must be non-negative")
	}
	if c.Tunables.MaxTasks < 1 {
		return fmt.Errorf("max_tasks must be at least 1")
	}
	return nil
}

func (t *Tunables) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tunables file: %w", err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("failed to parse tunables file: %w", err)
	}
	return nil
}

func (t *Tunables) loadEnv() error {
	if v := os.Getenv("STORAGE_CHECKSUM_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse STORAGE_CHECKSUM_GRACE: %w", err)
		}
		t.ChecksumGrace = d
	}
	if v := os.Getenv("WORKER_MAX_TASKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse WORKER_MAX_TASKS: %w", err)
		}
		t.MaxTasks = n
	}
	if v := os.Getenv("TOOLBOX_BINARY"); v != "" {
		t.ToolboxBinary = v
	}
	return nil
}

func intEnv(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return n, nil
}

// derivePublicURL guesses the public portal base from the API base:
// a leading "api." host label and a trailing "/api" path are dropped.
func derivePublicURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(apiURL, "/api")
	}
	u.Host = strings.TrimPrefix(u.Host, "api.")
	u.Path = strings.TrimSuffix(u.Path, "/api")
	return strings.TrimSuffix(u.String(), "/")
}
