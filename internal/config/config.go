package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string       `json:"serverAddress"`
	DatabasePath  string       `json:"databasePath"`
	DatabaseURL   string       `json:"databaseUrl"`
	PhotoStorage  PhotoStorage `json:"photoStorage"`
	Gallery       Gallery      `json:"gallery"`
	Viewer        Viewer       `json:"viewer"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// PhotoStorage configuration
type PhotoStorage struct {
	BasePath          string   `json:"basePath"`
	MaxFileSizeMB     int64    `json:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions"`
	// MaxDimension caps the longest side of stored images; 0 keeps originals
	MaxDimension int `json:"maxDimension"`
}

// MaxFileSizeBytes returns the upload limit in bytes
func (p PhotoStorage) MaxFileSizeBytes() int64 {
	return p.MaxFileSizeMB * 1024 * 1024
}

// Gallery timing and capacity. Durations are whole seconds in JSON.
type Gallery struct {
	LifetimeSeconds  float64 `json:"lifetimeSeconds"`
	FadeoutSeconds   float64 `json:"fadeoutSeconds"`
	MaxImages        int     `json:"maxImages"`
	CleanupSeconds   float64 `json:"cleanupSeconds"`
	MaxCommentLength int     `json:"maxCommentLength"`
}

// Lifetime is how long a photo stays fully visible
func (g Gallery) Lifetime() time.Duration { return seconds(g.LifetimeSeconds) }

// Fadeout is how long a photo fades after its lifetime
func (g Gallery) Fadeout() time.Duration { return seconds(g.FadeoutSeconds) }

// CleanupInterval is the expiry sweep period
func (g Gallery) CleanupInterval() time.Duration { return seconds(g.CleanupSeconds) }

// Viewer configuration for cmd/viewer
type Viewer struct {
	ServerURL      string `json:"serverUrl"`
	PollIntervalMs int    `json:"pollIntervalMs"`
	RemovalFadeMs  int    `json:"removalFadeMs"`
	Notify         bool   `json:"notify"`
}

// PollInterval returns the viewer poll period
func (v Viewer) PollInterval() time.Duration {
	return time.Duration(v.PollIntervalMs) * time.Millisecond
}

// RemovalFade returns the exit transition length
func (v Viewer) RemovalFade() time.Duration {
	return time.Duration(v.RemovalFadeMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "snappic.db",
		PhotoStorage: PhotoStorage{
			BasePath:      "./uploads",
			MaxFileSizeMB: 5,
			AllowedExtensions: []string{
				".png", ".jpg", ".jpeg", ".webp", ".heic", ".heif",
			},
			MaxDimension: 2048,
		},
		Gallery: Gallery{
			LifetimeSeconds:  5,
			FadeoutSeconds:   10,
			MaxImages:        10,
			CleanupSeconds:   1,
			MaxCommentLength: 100,
		},
		Viewer: Viewer{
			ServerURL:      "http://localhost:5000",
			PollIntervalMs: 2000,
			RemovalFadeMs:  500,
		},
	}
}

// Load loads configuration from .env, an optional JSON file and the environment
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DatabasePath, err = homedir.Expand(cfg.DatabasePath); err != nil {
		return nil, err
	}
	if cfg.PhotoStorage.BasePath, err = homedir.Expand(cfg.PhotoStorage.BasePath); err != nil {
		return nil, err
	}

	// Ensure photo storage directory exists
	if err := os.MkdirAll(cfg.PhotoStorage.BasePath, 0755); err != nil {
		return nil, err
	}

	// Make base path absolute
	absPath, err := filepath.Abs(cfg.PhotoStorage.BasePath)
	if err != nil {
		return nil, err
	}
	cfg.PhotoStorage.BasePath = absPath

	return cfg, nil
}

// LoadViewer loads only the viewer section and touches nothing on disk
func LoadViewer() (*Viewer, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return &cfg.Viewer, nil
}

func load() (*Config, error) {
	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	configPath, err := homedir.Expand(configPath)
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if basePath := os.Getenv("UPLOAD_FOLDER"); basePath != "" {
		cfg.PhotoStorage.BasePath = basePath
	}
	if size := os.Getenv("MAX_FILE_SIZE_MB"); size != "" {
		if mb, err := strconv.ParseInt(size, 10, 64); err == nil && mb > 0 {
			cfg.PhotoStorage.MaxFileSizeMB = mb
		}
	}
	if dim := os.Getenv("MAX_DIMENSION"); dim != "" {
		if px, err := strconv.Atoi(dim); err == nil && px >= 0 {
			cfg.PhotoStorage.MaxDimension = px
		}
	}

	// Gallery timing
	if v := os.Getenv("IMAGE_LIFETIME"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil && s >= 0 {
			cfg.Gallery.LifetimeSeconds = s
		}
	}
	if v := os.Getenv("FADEOUT_DURATION"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil && s >= 0 {
			cfg.Gallery.FadeoutSeconds = s
		}
	}
	if v := os.Getenv("MAX_IMAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gallery.MaxImages = n
		}
	}
	if v := os.Getenv("CLEANUP_INTERVAL"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil && s > 0 {
			cfg.Gallery.CleanupSeconds = s
		}
	}
	if v := os.Getenv("MAX_COMMENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Gallery.MaxCommentLength = n
		}
	}

	// Viewer
	if v := os.Getenv("SNAPPIC_SERVER_URL"); v != "" {
		cfg.Viewer.ServerURL = v
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Viewer.PollIntervalMs = ms
		}
	}
	if v := os.Getenv("REMOVAL_FADE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Viewer.RemovalFadeMs = ms
		}
	}
	if v := os.Getenv("VIEWER_NOTIFY"); v != "" {
		cfg.Viewer.Notify = v == "true" || v == "1"
	}
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.PhotoStorage.MaxFileSizeMB <= 0:
		return errors.New("photoStorage.maxFileSizeMB must be positive")
	case len(c.PhotoStorage.AllowedExtensions) == 0:
		return errors.New("photoStorage.allowedExtensions must not be empty")
	case c.Gallery.MaxImages <= 0:
		return errors.New("gallery.maxImages must be positive")
	case c.Gallery.LifetimeSeconds < 0 || c.Gallery.FadeoutSeconds < 0:
		return errors.New("gallery lifetime and fadeout must not be negative")
	case c.Gallery.CleanupSeconds <= 0:
		return errors.New("gallery.cleanupSeconds must be positive")
	}
	return nil
}
