package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL          string `yaml:"ttl"`
		QuestionTime string `yaml:"question_time"`
		MaxQuestions int    `yaml:"max_questions"`
	} `yaml:"quiz"`
	Images Images `yaml:"images"`
	Log    struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Images configures hint image downloads.
type Images struct {
	ConnectTimeout string `yaml:"connect_timeout"`
	TargetWidth    int    `yaml:"target_width"`
	TargetHeight   int    `yaml:"target_height"`
	AwaitTimeout   string `yaml:"await_timeout"`
	// ProbeAddr is dialled before each download; empty means the network is assumed reachable.
	ProbeAddr string `yaml:"probe_addr"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file does not exist.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil && os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Quiz.TTL = "10m"
	cfg.Quiz.QuestionTime = "30s"
	cfg.Quiz.MaxQuestions = 10
	cfg.Images = Images{
		ConnectTimeout: "10s",
		TargetWidth:    480,
		TargetHeight:   360,
		AwaitTimeout:   "15ms",
	}
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	return cfg
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
