package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Corrupt-file policies for an unreadable database file.
const (
	CorruptPreserve = "preserve" // rename aside before starting empty
	CorruptDiscard  = "discard"  // leave it; the next save overwrites
)

// Config carries every runtime setting. One instance is loaded by the
// process entry point and injected into whoever needs it.
type Config struct {
	DBFile        string `json:"db_file"`
	FilesFolder   string `json:"files_folder"`
	LogFile       string `json:"log_file"`
	ListenAddr    string `json:"listen_addr"`
	AdminPassword string `json:"admin_password"`
	SessionSecret string `json:"session_secret"`
	CorruptPolicy string `json:"corrupt_policy"`
}

func defaults() *Config {
	return &Config{
		DBFile:        "data.db",
		FilesFolder:   "files",
		LogFile:       "app.log",
		ListenAddr:    ":8080",
		AdminPassword: "",
		SessionSecret: "kbase-session",
		CorruptPolicy: CorruptPreserve,
	}
}

// Load reads the JSON config at path, creating it with defaults on first
// run. Keys missing from an existing file are backfilled and the file is
// rewritten, so older config files keep working after new settings appear.
// Environment variables (optionally from a .env file) override the file.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := defaults()
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := write(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		var present map[string]json.RawMessage
		if err := json.Unmarshal(raw, &present); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if missingKeys(present) {
			if err := write(path, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func write(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func missingKeys(present map[string]json.RawMessage) bool {
	data, _ := json.Marshal(defaults())
	var want map[string]json.RawMessage
	json.Unmarshal(data, &want)
	for key := range want {
		if _, ok := present[key]; !ok {
			return true
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg.DBFile = getEnv("KB_DB_FILE", cfg.DBFile)
	cfg.FilesFolder = getEnv("KB_FILES_FOLDER", cfg.FilesFolder)
	cfg.LogFile = getEnv("KB_LOG_FILE", cfg.LogFile)
	cfg.ListenAddr = getEnv("KB_LISTEN_ADDR", cfg.ListenAddr)
	cfg.AdminPassword = getEnv("KB_ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.CorruptPolicy = getEnv("KB_CORRUPT_POLICY", cfg.CorruptPolicy)
}
