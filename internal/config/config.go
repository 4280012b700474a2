package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	// Market pins the deployment's state; exports never carry it.
	Market struct {
		State string `yaml:"state" json:"state"`
	} `yaml:"market" json:"market"`

	Inbox struct {
		Dir string `yaml:"dir" json:"dir"`
	} `yaml:"inbox" json:"inbox"`

	// Mailbox pulls MLS export attachments from an IMAP account into the
	// inbox dir. Optional; the password lives in the OS keychain.
	Mailbox struct {
		Enabled  bool     `yaml:"enabled" json:"enabled"`
		IMAPHost string   `yaml:"imap_host" json:"imap_host"`
		IMAPPort int      `yaml:"imap_port" json:"imap_port"`
		Username string   `yaml:"username" json:"username"`
		FromAny  []string `yaml:"from_any" json:"from_any"`
	} `yaml:"mailbox" json:"mailbox"`

	Pipeline struct {
		ScheduleMinutes   int `yaml:"schedule_minutes" json:"schedule_minutes"`
		DeepAnalysisLimit int `yaml:"deep_analysis_limit" json:"deep_analysis_limit"`
	} `yaml:"pipeline" json:"pipeline"`

	SkipTrace struct {
		Enabled     bool   `yaml:"enabled" json:"enabled"`
		BaseURL     string `yaml:"base_url" json:"base_url"`
		PollSeconds int    `yaml:"poll_seconds" json:"poll_seconds"`
		MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
	} `yaml:"skiptrace" json:"skiptrace"`

	Analysis struct {
		BaseURL         string `yaml:"base_url" json:"base_url"`
		MinDelaySeconds int    `yaml:"min_delay_seconds" json:"min_delay_seconds"`
	} `yaml:"analysis" json:"analysis"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
		TopN       int    `yaml:"top_n" json:"top_n"`
	} `yaml:"notify" json:"notify"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
