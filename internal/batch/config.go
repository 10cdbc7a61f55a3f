package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/unosaa/datapipe/internal/domain"
)

// DefaultListenAddr is where the status server listens in schedule mode.
const DefaultListenAddr = ":8088"

// JobConfig is one scheduled pipeline invocation.
type JobConfig struct {
	Name    string `toml:"name"`
	Command string `toml:"command"`
	Cron    string `toml:"cron"`
	Enabled *bool  `toml:"enabled"`
}

// ScheduleConfig holds the schedule-mode configuration file.
type ScheduleConfig struct {
	ListenAddr      string      `toml:"listen_addr"`
	SlackWebhookURL string      `toml:"slack_webhook_url"`
	Jobs            []JobConfig `toml:"job"`
}

// IsEnabled reports whether the job should be scheduled. Jobs are
// enabled unless the file says otherwise.
func (c *JobConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks if the config is valid.
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if c.Command == "" {
		return fmt.Errorf("job command is required")
	}
	cmd, err := domain.ParseCommand(c.Command)
	if err != nil {
		return err
	}
	if !cmd.Schedulable() {
		return fmt.Errorf("command %q cannot be scheduled", c.Command)
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// LoadScheduleConfig loads the schedule configuration from a TOML file.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule config: %w", err)
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedule config: %w", err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	for i := range cfg.Jobs {
		if err := cfg.Jobs[i].Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}

	return &cfg, nil
}
