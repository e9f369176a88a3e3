package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/radflow/pkg/core/model"
)

// ShiftTemplate describes a recurring shift. Each occurrence creates one shift per required
// head count at every matching location.
type ShiftTemplate struct {
	Name             string   `yaml:"name" validate:"required"`
	RRule            string   `yaml:"rrule" validate:"required"`
	Night            bool     `yaml:"night,omitempty"`
	Locations        []string `yaml:"locations,omitempty"`
	Subspecialty     string   `yaml:"subspecialty,omitempty"`
	DurationHours    int      `yaml:"durationHours" validate:"gt=0,lte=24"`
	BaseCompensation int      `yaml:"baseCompensation" validate:"gte=0"`
	Mode             string   `yaml:"mode,omitempty"`
	Priority         string   `yaml:"priority,omitempty" validate:"omitempty,oneof=Normal High Urgent"`
}

// SweepConfig controls the bidding expiry sweep
type SweepConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" validate:"gte=0"`
	// TrustedProxies may set X-Forwarded-For; requests from anyone else are keyed by peer address
	TrustedProxies []string `yaml:"trustedProxies" validate:"dive,cidr|ip"`
}

// NotificationsConfig enables email delivery through Gmail. When disabled, notifications and
// approval requests are only logged.
type NotificationsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	GmailUserID     string `yaml:"gmailUserID" validate:"required_if=Enabled true"`
	GmailSender     string `yaml:"gmailSender,omitempty"`
	ApproverEmail   string `yaml:"approverEmail,omitempty" validate:"omitempty,email"`
	EmailsPerMinute int    `yaml:"emailsPerMinute" validate:"gte=0"`
}

// Config represents the application configuration
type Config struct {
	// DatabaseURL selects the PostgreSQL store; shifts are kept in memory when empty
	DatabaseURL string `yaml:"databaseURL,omitempty"`

	// The radiologist directory is read from DirectoryFile or from a Google Sheet
	DirectoryFile      string `yaml:"directoryFile,omitempty"`
	RadiologistSheetID string `yaml:"radiologistSheetID,omitempty"`
	RadiologistsTab    string `yaml:"radiologistsTab,omitempty" validate:"required_with=RadiologistSheetID"`
	LocationsTab       string `yaml:"locationsTab,omitempty" validate:"required_with=RadiologistSheetID"`

	Policy         model.DepartmentPolicy `yaml:"policy"`
	ShiftTemplates []ShiftTemplate        `yaml:"shiftTemplates,omitempty" validate:"dive"`
	Sweep          SweepConfig            `yaml:"sweep"`
	Server         ServerConfig           `yaml:"server"`
	Notifications  NotificationsConfig    `yaml:"notifications"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns a configuration with the department defaults and no directory source
func Default() Config {
	return Config{
		Policy: model.DefaultPolicy(),
		Sweep: SweepConfig{
			Interval:    time.Minute,
			Concurrency: 4,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerMinute: 120,
		},
		Notifications: NotificationsConfig{
			EmailsPerMinute: 30,
		},
	}
}

// LoadWithEnv loads radflow_config.<env>.yaml, falling back to radflow_config.yaml.
// It looks in the current directory first, then in the user's home directory.
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
// Fields missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration, normalises mode names and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.DirectoryFile == "" && cfg.RadiologistSheetID == "" {
		return fmt.Errorf("config validation failed: one of directoryFile or radiologistSheetID is required")
	}

	mode, err := model.ParseAssignmentMode(string(cfg.Policy.DefaultAssignmentMode))
	if err != nil {
		return fmt.Errorf("invalid policy.defaultAssignmentMode: %w", err)
	}
	cfg.Policy.DefaultAssignmentMode = mode

	if err := cfg.Policy.Validate(); err != nil {
		return err
	}

	for i, tmpl := range cfg.ShiftTemplates {
		if _, err := rrule.StrToRRule(tmpl.RRule); err != nil {
			return fmt.Errorf("invalid rrule in shiftTemplates[%d]: %w", i, err)
		}
		if _, err := model.ParseAssignmentMode(tmpl.Mode); err != nil {
			return fmt.Errorf("invalid mode in shiftTemplates[%d]: %w", i, err)
		}
	}

	return nil
}

// findConfigFile searches for the env-specific config file, then the shared one
func findConfigFile(env string) (string, error) {
	names := []string{"radflow_config.yaml"}
	if env != "" {
		names = []string{"radflow_config." + env + ".yaml", "radflow_config.yaml"}
	}
	return findFile(names)
}

// findFile returns the first of names found in the current directory, then the home directory
func findFile(names []string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	for _, dir := range []string{".", homeDir} {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", names[0])
}
