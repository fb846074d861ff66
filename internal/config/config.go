package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fieldline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret       string              `yaml:"jwt_secret"`
		TokenTTLMinutes int                 `yaml:"token_ttl_minutes"`
		DevLogin        bool                `yaml:"dev_login"`
		Roles           map[string]RBACRole `yaml:"roles"`
	} `yaml:"auth"`
	Admin struct {
		Username string `yaml:"username"`
		Phone    string `yaml:"phone"`
	} `yaml:"admin"`
	Storage StorageConfig `yaml:"storage"`
	SMS     SMSConfig     `yaml:"sms"`
	Audit   struct {
		Kafka KafkaConfig `yaml:"kafka"`
	} `yaml:"audit"`
	Redis    RedisConfig     `yaml:"redis"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Log      LogConfig       `yaml:"log"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Minio   MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type SMSConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Username       string `yaml:"username"`
	APIKey         string `yaml:"api_key"`
	SenderID       string `yaml:"sender_id"`
	CountryCode    string `yaml:"country_code"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-message transport timeout.
func (c SMSConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Actions        []string `yaml:"actions"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTLMinutes < 0 {
		return fmt.Errorf("config.auth.token_ttl_minutes must not be negative")
	}
	for _, role := range []string{"admin", "worker"} {
		if _, ok := c.Auth.Roles[role]; !ok {
			return fmt.Errorf("config.auth.roles must include %s", role)
		}
	}
	for roleID, role := range c.Auth.Roles {
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	if c.Admin.Username == "" {
		return fmt.Errorf("config.admin.username is required")
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Dir == "" {
			return fmt.Errorf("config.storage.dir is required for the fs backend")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("config.storage.minio.endpoint and bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be 'fs' or 'minio'")
	}
	if c.SMS.TimeoutSeconds < 0 {
		return fmt.Errorf("config.sms.timeout_seconds must not be negative")
	}
	if c.SMS.CountryCode == "" {
		return fmt.Errorf("config.sms.country_code is required")
	}
	if len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		return fmt.Errorf("config.audit.kafka.topic is required when brokers are set")
	}
	for i, hook := range c.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config.log.format must be 'json' or 'text'")
	}
	return nil
}

// Permissions returns the union of permissions granted by roles.
func (c *Config) Permissions(roles []string) []string {
	seen := map[string]struct{}{}
	var perms []string
	for _, r := range roles {
		role, ok := c.Auth.Roles[r]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fieldline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1

auth:
  token_ttl_minutes: 720
  dev_login: false
  roles:
    admin:
      description: "Dispatcher; manages tasks, workers and complaints"
      permissions:
        - task.create
        - task.read
        - task.update
        - task.reset
        - task.delete
        - worker.manage
        - complaint.read
        - complaint.update
        - audit.read
        - sms.send
    worker:
      description: "Field worker; acts on own tasks"
      permissions:
        - task.own
        - task.acknowledge
        - task.complete
        - complaint.submit

admin:
  username: admin
  phone: "+254700000001"

storage:
  backend: fs
  dir: uploads

sms:
  endpoint: ""
  username: sandbox
  country_code: "254"
  timeout_seconds: 15

log:
  level: info
  format: text
`
