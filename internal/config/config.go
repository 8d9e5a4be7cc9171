package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"recruitline/internal/slots"
)

// Config models recruitline.yml.
type Config struct {
	Scheduling Scheduling `yaml:"scheduling"`
	Booking    struct {
		LinkTTLHours int `yaml:"link_ttl_hours"`
	} `yaml:"booking"`
	Sweep struct {
		Schedule     string `yaml:"schedule"`
		GraceMinutes int    `yaml:"grace_minutes"`
	} `yaml:"sweep"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Messaging struct {
		RedisURL string `yaml:"redis_url"`
		Channel  string `yaml:"channel"`
	} `yaml:"messaging"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Scheduling struct {
	Timezone          string               `yaml:"timezone"`
	Weekly            slots.WeeklySchedule `yaml:"weekly"`
	InterviewDuration int                  `yaml:"interview_duration"`
	TrialDuration     int                  `yaml:"trial_duration"`
	Buffer            int                  `yaml:"buffer"`
	MinNoticeHours    int                  `yaml:"min_notice_hours"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Webhook forwards activity entries matching Actions (all when empty) to URL.
type Webhook struct {
	ID      string   `yaml:"id"`
	URL     string   `yaml:"url"`
	Secret  string   `yaml:"secret"`
	Actions []string `yaml:"actions"`
}

// Location resolves the scheduling timezone; empty means UTC.
func (s Scheduling) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// DurationFor returns the configured slot length for an interview type.
func (s Scheduling) DurationFor(trial bool) int {
	if trial {
		return s.TrialDuration
	}
	return s.InterviewDuration
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := c.Scheduling.Location(); err != nil {
		return fmt.Errorf("config.scheduling.timezone: %w", err)
	}
	if c.Scheduling.InterviewDuration <= 0 {
		return fmt.Errorf("config.scheduling.interview_duration must be positive")
	}
	if c.Scheduling.TrialDuration <= 0 {
		return fmt.Errorf("config.scheduling.trial_duration must be positive")
	}
	if c.Scheduling.Buffer < 0 || c.Scheduling.MinNoticeHours < 0 {
		return fmt.Errorf("config.scheduling buffer and min_notice_hours must not be negative")
	}
	known := map[string]bool{}
	for _, k := range slots.WeekdayKeys() {
		known[k] = true
	}
	for day, sched := range c.Scheduling.Weekly {
		if !known[day] {
			return fmt.Errorf("config.scheduling.weekly has unknown day %q", day)
		}
		for _, w := range sched.Windows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("config.scheduling.weekly.%s: %w", day, err)
			}
		}
	}
	if c.Booking.LinkTTLHours <= 0 {
		return fmt.Errorf("config.booking.link_ttl_hours must be positive")
	}
	if c.Sweep.GraceMinutes < 0 {
		return fmt.Errorf("config.sweep.grace_minutes must not be negative")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["super_admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include super_admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "recruitline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional falls back to Default when the config file does not exist.
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

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// keep their defaults.
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

const defaultTemplate = `scheduling:
  timezone: UTC
  interview_duration: 30
  trial_duration: 240
  buffer: 0
  min_notice_hours: 24
  weekly:
    monday:
      enabled: true
      windows: [{start: "09:00", end: "17:00"}]
    tuesday:
      enabled: true
      windows: [{start: "09:00", end: "17:00"}]
    wednesday:
      enabled: true
      windows: [{start: "09:00", end: "17:00"}]
    thursday:
      enabled: true
      windows: [{start: "09:00", end: "17:00"}]
    friday:
      enabled: true
      windows: [{start: "09:00", end: "17:00"}]
    saturday:
      enabled: false
    sunday:
      enabled: false

booking:
  link_ttl_hours: 72

sweep:
  schedule: "@every 15m"
  grace_minutes: 60

rbac:
  roles:
    super_admin:
      description: "Full access including permanent deletion"
      permissions:
        - candidate.create
        - interview.manage
        - feedback.submit
        - decision.manage
        - booking.manage
        - candidate.archive
        - candidate.restore
        - candidate.reactivate
        - candidate.delete
        - activity.read
    recruiter:
      description: "Runs the hiring pipeline"
      permissions:
        - candidate.create
        - interview.manage
        - feedback.submit
        - decision.manage
        - booking.manage
        - candidate.archive
        - candidate.restore
        - candidate.reactivate
        - activity.read
    interviewer:
      description: "Submits interview feedback"
      permissions:
        - feedback.submit

messaging:
  redis_url: ""
  channel: CMD_SEND_EMAIL
`
