// Package config loads bridge settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/connectivity"
)

const (
	ModePull = "pull"
	ModePush = "push"

	TransportMQTT = "mqtt"
	TransportNATS = "nats"

	AuthPassword       = "password"
	AuthAnonymous      = "anonymous"
	AuthServiceAccount = "service_account"

	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"

	deviceIDFile = "device_id"
)

// Config is the full bridge configuration.
type Config struct {
	Mode       string          `yaml:"mode"`
	BridgeName string          `yaml:"bridge_name"`
	DeviceID   string          `yaml:"device_id"`
	StateDir   string          `yaml:"state_dir"`
	HTTPAddr   string          `yaml:"http_addr"`
	Device     DeviceConfig    `yaml:"device"`
	Loop       LoopConfig      `yaml:"loop"`
	Reconnect  ReconnectConfig `yaml:"reconnect"`
	Firestore  FirestoreConfig `yaml:"firestore"`
	Push       PushConfig      `yaml:"push"`
	Journal    JournalConfig   `yaml:"journal"`
}

// DeviceConfig describes the local light controller.
type DeviceConfig struct {
	Address   string        `yaml:"address"`
	Port      int           `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
}

// LoopConfig holds the bridge loop cadence.
type LoopConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	BatchLimit        int           `yaml:"batch_limit"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// StatusInterval paces push-mode state publishes. Negative disables them.
	StatusInterval    time.Duration `yaml:"status_interval"`
	MailboxSize       int           `yaml:"mailbox_size"`
}

// ReconnectConfig drives the connectivity supervisor.
type ReconnectConfig struct {
	Policy         string        `yaml:"policy"`
	Interval       time.Duration `yaml:"interval"`
	MaxInterval    time.Duration `yaml:"max_interval"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	NetCheckAddr   string        `yaml:"net_check_addr"`
}

// FirestoreConfig holds pull-mode settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	Database        string `yaml:"database"`
	BaseURL         string `yaml:"base_url"`
	IdentityURL     string `yaml:"identity_url"`
	Auth            string `yaml:"auth"`
	APIKey          string `yaml:"api_key"`
	Email           string `yaml:"email"`
	Password        string `yaml:"password"`
	CredentialsFile string `yaml:"credentials_file"`
	UID             string `yaml:"uid"`
}

// PushConfig holds push-mode settings.
type PushConfig struct {
	Transport string        `yaml:"transport"`
	Namespace string        `yaml:"namespace"`
	Broker    string        `yaml:"broker"`
	NATSURL   string        `yaml:"nats_url"`
	ClientID  string        `yaml:"client_id"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	Token     string        `yaml:"token"`
	KeepAlive time.Duration `yaml:"keepalive"`
}

// JournalConfig selects the command journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// Load reads BRIDGE_CONFIG (when set), overlays the environment, applies
// defaults and validates.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("BRIDGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.overlayEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv() {
	c.Mode = getenvDefault("BRIDGE_MODE", c.Mode)
	c.BridgeName = getenvDefault("BRIDGE_NAME", c.BridgeName)
	c.DeviceID = getenvDefault("BRIDGE_DEVICE_ID", c.DeviceID)
	c.StateDir = getenvDefault("BRIDGE_STATE_DIR", c.StateDir)
	c.HTTPAddr = getenvDefault("HTTP_ADDR", c.HTTPAddr)

	c.Device.Address = getenvDefault("WLED_ADDRESS", c.Device.Address)
	c.Device.Port = getenvIntDefault("WLED_PORT", c.Device.Port)
	c.Device.Timeout = getenvDuration("WLED_TIMEOUT", c.Device.Timeout)
	c.Device.RateLimit = getenvFloatDefault("WLED_RATE_LIMIT", c.Device.RateLimit)
	c.Device.RateBurst = getenvIntDefault("WLED_RATE_BURST", c.Device.RateBurst)

	c.Loop.PollInterval = getenvDuration("POLL_INTERVAL", c.Loop.PollInterval)
	c.Loop.BatchLimit = getenvIntDefault("BATCH_LIMIT", c.Loop.BatchLimit)
	c.Loop.HeartbeatInterval = getenvDuration("HEARTBEAT_INTERVAL", c.Loop.HeartbeatInterval)
	c.Loop.StatusInterval = getenvDuration("STATUS_INTERVAL", c.Loop.StatusInterval)
	c.Loop.MailboxSize = getenvIntDefault("MAILBOX_SIZE", c.Loop.MailboxSize)

	c.Reconnect.Policy = getenvDefault("RECONNECT_POLICY", c.Reconnect.Policy)
	c.Reconnect.Interval = getenvDuration("RECONNECT_INTERVAL", c.Reconnect.Interval)
	c.Reconnect.MaxInterval = getenvDuration("RECONNECT_MAX_INTERVAL", c.Reconnect.MaxInterval)
	c.Reconnect.AttemptTimeout = getenvDuration("RECONNECT_ATTEMPT_TIMEOUT", c.Reconnect.AttemptTimeout)
	c.Reconnect.NetCheckAddr = getenvDefault("NET_CHECK_ADDR", c.Reconnect.NetCheckAddr)

	c.Firestore.ProjectID = getenvDefault("FIRESTORE_PROJECT_ID", c.Firestore.ProjectID)
	c.Firestore.Database = getenvDefault("FIRESTORE_DATABASE", c.Firestore.Database)
	c.Firestore.BaseURL = getenvDefault("FIRESTORE_BASE_URL", c.Firestore.BaseURL)
	c.Firestore.IdentityURL = getenvDefault("FIREBASE_IDENTITY_URL", c.Firestore.IdentityURL)
	c.Firestore.Auth = getenvDefault("FIRESTORE_AUTH", c.Firestore.Auth)
	c.Firestore.APIKey = getenvDefault("FIREBASE_API_KEY", c.Firestore.APIKey)
	c.Firestore.Email = getenvDefault("FIREBASE_EMAIL", c.Firestore.Email)
	c.Firestore.Password = getenvDefault("FIREBASE_PASSWORD", c.Firestore.Password)
	c.Firestore.CredentialsFile = getenvDefault("FIRESTORE_CREDENTIALS_FILE", c.Firestore.CredentialsFile)
	c.Firestore.UID = getenvDefault("FIRESTORE_UID", c.Firestore.UID)

	c.Push.Transport = getenvDefault("PUSH_TRANSPORT", c.Push.Transport)
	c.Push.Namespace = getenvDefault("PUSH_NAMESPACE", c.Push.Namespace)
	c.Push.Broker = getenvDefault("MQTT_BROKER", c.Push.Broker)
	c.Push.ClientID = getenvDefault("MQTT_CLIENT_ID", c.Push.ClientID)
	c.Push.Username = getenvDefault("PUSH_USERNAME", c.Push.Username)
	c.Push.Password = getenvDefault("PUSH_PASSWORD", c.Push.Password)
	c.Push.KeepAlive = getenvDuration("MQTT_KEEPALIVE", c.Push.KeepAlive)
	c.Push.NATSURL = getenvDefault("NATS_URL", c.Push.NATSURL)
	c.Push.Token = getenvDefault("NATS_TOKEN", c.Push.Token)

	c.Journal.Driver = getenvDefault("JOURNAL_DRIVER", c.Journal.Driver)
	c.Journal.Path = getenvDefault("JOURNAL_PATH", c.Journal.Path)
	c.Journal.DSN = getenvDefault("PG_DSN", c.Journal.DSN)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePull
	}
	if c.BridgeName == "" {
		c.BridgeName = "lumina-bridge"
	}
	if c.StateDir == "" {
		c.StateDir = filepath.FromSlash("var/lumina-bridge")
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Device.Port == 0 {
		c.Device.Port = 80
	}
	if c.Device.Timeout == 0 {
		c.Device.Timeout = 10 * time.Second
	}
	if c.Loop.PollInterval == 0 {
		c.Loop.PollInterval = 2 * time.Second
		if c.Mode == ModePush {
			c.Loop.PollInterval = 250 * time.Millisecond
		}
	}
	if c.Loop.BatchLimit == 0 {
		c.Loop.BatchLimit = 5
	}
	if c.Loop.HeartbeatInterval == 0 {
		c.Loop.HeartbeatInterval = 5 * time.Second
	}
	if c.Loop.StatusInterval == 0 {
		c.Loop.StatusInterval = 30 * time.Second
	}
	if c.Loop.MailboxSize == 0 {
		c.Loop.MailboxSize = 32
	}
	if c.Reconnect.Policy == "" {
		c.Reconnect.Policy = BackoffFixed
	}
	if c.Reconnect.Interval == 0 {
		c.Reconnect.Interval = connectivity.DefaultReconnectInterval
	}
	if c.Reconnect.MaxInterval == 0 {
		c.Reconnect.MaxInterval = 5 * time.Minute
	}
	if c.Reconnect.AttemptTimeout == 0 {
		c.Reconnect.AttemptTimeout = connectivity.DefaultAttemptTimeout
	}
	if c.Firestore.Auth == "" {
		c.Firestore.Auth = AuthPassword
	}
	if c.Push.Transport == "" {
		c.Push.Transport = TransportMQTT
	}
	if c.Push.Namespace == "" {
		c.Push.Namespace = "lumina"
	}
	if c.Push.KeepAlive == 0 {
		c.Push.KeepAlive = 60 * time.Second
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = JournalMemory
	}
	if c.Journal.Driver == JournalSQLite && c.Journal.Path == "" {
		c.Journal.Path = filepath.Join(c.StateDir, "journal.db")
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Mode {
	case ModePull:
		if err := c.Firestore.validate(); err != nil {
			return err
		}
		if c.Device.Address != "" {
			if err := commands.ValidateTarget(c.Device.Address); err != nil {
				return fmt.Errorf("config: device.address: %w", err)
			}
		}
	case ModePush:
		if err := c.Push.validate(); err != nil {
			return err
		}
		if err := commands.ValidateTarget(c.Device.Address); err != nil {
			return fmt.Errorf("config: device.address: %w", err)
		}
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Loop.BatchLimit < 0 || c.Loop.MailboxSize < 0 {
		return errors.New("config: batch_limit and mailbox_size must be positive")
	}
	if c.Loop.PollInterval < 0 || c.Device.Timeout < 0 {
		return errors.New("config: intervals must not be negative")
	}
	switch c.Reconnect.Policy {
	case BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("config: unknown reconnect policy %q", c.Reconnect.Policy)
	}
	switch c.Journal.Driver {
	case JournalMemory:
	case JournalSQLite:
		if c.Journal.Path == "" {
			return errors.New("config: journal.path required for sqlite")
		}
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return errors.New("config: journal.dsn required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown journal driver %q", c.Journal.Driver)
	}
	return nil
}

func (f FirestoreConfig) validate() error {
	if f.ProjectID == "" {
		return errors.New("config: firestore.project_id required")
	}
	switch f.Auth {
	case AuthPassword:
		if f.APIKey == "" || f.Email == "" {
			return errors.New("config: firestore password auth needs api_key and email")
		}
	case AuthAnonymous:
		if f.APIKey == "" {
			return errors.New("config: firestore anonymous auth needs api_key")
		}
	case AuthServiceAccount:
		if f.CredentialsFile == "" || f.UID == "" {
			return errors.New("config: firestore service account auth needs credentials_file and uid")
		}
	default:
		return fmt.Errorf("config: unknown firestore auth %q", f.Auth)
	}
	return nil
}

func (p PushConfig) validate() error {
	switch p.Transport {
	case TransportMQTT:
		if p.Broker == "" {
			return errors.New("config: push.broker required for mqtt")
		}
	case TransportNATS:
		if p.NATSURL == "" {
			return errors.New("config: push.nats_url required for nats")
		}
	default:
		return fmt.Errorf("config: unknown push transport %q", p.Transport)
	}
	return nil
}

// Backoff builds the reconnect policy.
func (r ReconnectConfig) Backoff() connectivity.Backoff {
	if r.Policy == BackoffExponential {
		return connectivity.ExponentialBackoff{Base: r.Interval, Max: r.MaxInterval}
	}
	return connectivity.FixedBackoff{Interval: r.Interval}
}

// ResolveDeviceID returns the configured device id, or one generated on first
// run and persisted under the state directory.
func ResolveDeviceID(cfg Config) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	if cfg.StateDir == "" {
		return "", errors.New("config: state dir required to persist device id")
	}
	path := filepath.Join(cfg.StateDir, deviceIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	id := uuid.NewString()
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
