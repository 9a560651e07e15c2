package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Backend struct {
		BaseURL string `yaml:"baseUrl"`
		Token   string `yaml:"token"`
	} `yaml:"backend"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Exam struct {
		// RegionOffset is the fixed offset exam schedules are declared in,
		// e.g. "+05:30"; it never follows the device timezone.
		RegionOffset string `yaml:"regionOffset"`
		QuestionTTL  string `yaml:"questionTtl"`
	} `yaml:"exam"`
	Export struct {
		Dir    string `yaml:"dir"`
		Format string `yaml:"format"` // "text" or "xlsx"
	} `yaml:"export"`
}

// Load reads YAML config from path. A .env file, if present, is loaded
// first so the YAML can be templated from the environment by the caller.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
