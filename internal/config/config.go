package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Detect  DetectConfig  `yaml:"detect"`
	Rules   URLRules      `yaml:"rules"`
	Vision  VisionConfig  `yaml:"vision"`
	Voice   VoiceConfig   `yaml:"voice"`
	Persist PersistConfig `yaml:"persist"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	Host              string        `yaml:"host"`
	AuthToken         string        `yaml:"auth_token"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

// DetectConfig carries every timing threshold of the detection engine.
// Defaults match the product behavior: a 5s hidden-tab grace before an alert,
// 3s minimum before a tab switch is worth recording, 90s of no input before
// idle, and a 60s multimodal analysis cadence.
type DetectConfig struct {
	VisibilityArm       time.Duration `yaml:"visibility_arm"`
	VisibilityMinRecord time.Duration `yaml:"visibility_min_record"`
	IdleThreshold       time.Duration `yaml:"idle_threshold"`
	URLPollInterval     time.Duration `yaml:"url_poll_interval"`
	AnalyzeInterval     time.Duration `yaml:"analyze_interval"`
	AnalyzeTimeout      time.Duration `yaml:"analyze_timeout"`
	AlertBucket         time.Duration `yaml:"alert_bucket"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown"`
	AlertRetention      time.Duration `yaml:"alert_retention"`
}

// URLRules drives URL classification. Categories maps a domain fragment to a
// category name ("social", "entertainment", "shopping", "news"); Blacklist is
// generic always-distracting fragments; Whitelist is the productivity
// allowlist a URL must match to avoid the irrelevant_content fallback.
type URLRules struct {
	Categories map[string]string `yaml:"categories"`
	Blacklist  []string          `yaml:"blacklist"`
	Whitelist  []string          `yaml:"whitelist"`
}

type VisionConfig struct {
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	CaptureCommand []string `yaml:"capture_command"`
	CameraCommand  []string `yaml:"camera_command"`
}

type VoiceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SpeakCommand  []string      `yaml:"speak_command"`
	ListenCommand []string      `yaml:"listen_command"`
	ListenTimeout time.Duration `yaml:"listen_timeout"`
	AlertPhrase   string        `yaml:"alert_phrase"`
}

type PersistConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the YAML config at path, layering it over defaults. A missing
// file is not an error: the defaults are a complete working configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8710,
			Host:              "127.0.0.1",
			BroadcastThrottle: 100 * time.Millisecond,
			SnapshotInterval:  10 * time.Second,
		},
		Detect: DetectConfig{
			VisibilityArm:       5 * time.Second,
			VisibilityMinRecord: 3 * time.Second,
			IdleThreshold:       90 * time.Second,
			URLPollInterval:     5 * time.Second,
			AnalyzeInterval:     60 * time.Second,
			AnalyzeTimeout:      30 * time.Second,
			AlertBucket:         5 * time.Second,
			AlertCooldown:       3 * time.Second,
			AlertRetention:      30 * time.Second,
		},
		Rules: URLRules{
			Categories: map[string]string{
				"facebook.com":  "social",
				"twitter.com":   "social",
				"x.com":         "social",
				"instagram.com": "social",
				"tiktok.com":    "social",
				"reddit.com":    "social",
				"youtube.com":   "entertainment",
				"netflix.com":   "entertainment",
				"twitch.tv":     "entertainment",
				"hulu.com":      "entertainment",
				"amazon.com":    "shopping",
				"ebay.com":      "shopping",
				"etsy.com":      "shopping",
				"cnn.com":       "news",
				"bbc.com":       "news",
				"news.google":   "news",
			},
			Blacklist: []string{"9gag.com", "buzzfeed.com", "imgur.com"},
			Whitelist: []string{
				"docs.google.com", "github.com", "gitlab.com",
				"stackoverflow.com", "wikipedia.org", "notion.so",
				"localhost", "scholar.google",
			},
		},
		Vision: VisionConfig{
			Model: "gemini-2.0-flash",
		},
		Voice: VoiceConfig{
			ListenTimeout: 8 * time.Second,
			AlertPhrase:   "Looks like you've drifted off course. Say 'back on course' or 'exploring'.",
		},
		Persist: PersistConfig{},
	}
}

// Validate rejects configurations the engine cannot run with. Zero or
// negative thresholds would wedge timers or spin tickers.
func (c *Config) Validate() error {
	d := c.Detect
	durations := []struct {
		name string
		val  time.Duration
	}{
		{"detect.visibility_arm", d.VisibilityArm},
		{"detect.visibility_min_record", d.VisibilityMinRecord},
		{"detect.idle_threshold", d.IdleThreshold},
		{"detect.url_poll_interval", d.URLPollInterval},
		{"detect.analyze_interval", d.AnalyzeInterval},
		{"detect.analyze_timeout", d.AnalyzeTimeout},
		{"detect.alert_bucket", d.AlertBucket},
		{"detect.alert_cooldown", d.AlertCooldown},
		{"detect.alert_retention", d.AlertRetention},
		{"server.broadcast_throttle", c.Server.BroadcastThrottle},
		{"server.snapshot_interval", c.Server.SnapshotInterval},
	}
	for _, dur := range durations {
		if dur.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", dur.name, dur.val)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
