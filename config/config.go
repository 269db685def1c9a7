package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
	yamlv3 "gopkg.in/yaml.v3"

	"backoffice/money"
)

const (
	DefaultPath = "./backoffice.yaml"
	envPrefix   = "BACKOFFICE_"
)

type Server struct {
	Addr           string   `koanf:"addr" yaml:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins"`
	StaticDir      string   `koanf:"static_dir" yaml:"static_dir"`
}

type Database struct {
	Driver string `koanf:"driver" yaml:"driver"`
	DSN    string `koanf:"dsn" yaml:"dsn"`
}

type Auth struct {
	JWTSecret          string        `koanf:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl" yaml:"token_ttl"`
	LoginRatePerMinute int           `koanf:"login_rate_per_minute" yaml:"login_rate_per_minute"`
}

type Log struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

type Company struct {
	Name     string `koanf:"name" yaml:"name" json:"name"`
	Address  string `koanf:"address" yaml:"address" json:"address"`
	Email    string `koanf:"email" yaml:"email" json:"email"`
	Phone    string `koanf:"phone" yaml:"phone" json:"phone"`
	TaxID    string `koanf:"tax_id" yaml:"tax_id" json:"taxId"`
	Currency string `koanf:"currency" yaml:"currency" json:"currency"`
}

type Invoice struct {
	DefaultDueDays  int    `koanf:"default_due_days" yaml:"default_due_days" json:"defaultDueDays"`
	OverdueSchedule string `koanf:"overdue_schedule" yaml:"overdue_schedule" json:"overdueSchedule"`
}

type PDF struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	BrowserBin string `koanf:"browser_bin" yaml:"browser_bin"`
}

type Config struct {
	Server   Server   `koanf:"server" yaml:"server"`
	Database Database `koanf:"database" yaml:"database"`
	Auth     Auth     `koanf:"auth" yaml:"auth"`
	Log      Log      `koanf:"log" yaml:"log"`
	Company  Company  `koanf:"company" yaml:"company"`
	Invoice  Invoice  `koanf:"invoice" yaml:"invoice"`
	PDF      PDF      `koanf:"pdf" yaml:"pdf"`
}

var (
	cfg      = Defaults()
	cfgPath  = DefaultPath
	mu       sync.RWMutex
	errNoKey = errors.New("auth.jwt_secret is required")
)

func Defaults() Config {
	return Config{
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Database: Database{
			Driver: "sqlite3",
			DSN:    "./backoffice.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on",
		},
		Auth: Auth{
			TokenTTL:           12 * time.Hour,
			LoginRatePerMinute: 10,
		},
		Log: Log{Level: "info", Format: "console"},
		Company: Company{
			Name:     "My Company",
			Currency: "USD",
		},
		Invoice: Invoice{
			DefaultDueDays:  30,
			OverdueSchedule: "@daily",
		},
	}
}

// Load reads path (a missing file is fine), then BACKOFFICE_* environment
// variables, on top of Defaults. A .env file in the working directory is
// loaded into the environment first when present.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	loaded, err := read(path)
	if err != nil {
		return Config{}, err
	}

	mu.Lock()
	cfg = loaded
	cfgPath = path
	mu.Unlock()
	return loaded, nil
}

func read(path string) (Config, error) {
	k := koanf.New(".")

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// BACKOFFICE_AUTH_JWT_SECRET -> auth.jwt_secret
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	out := Defaults()
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	applyFallbacks(&out)
	return out, nil
}

func applyFallbacks(c *Config) {
	if c.Invoice.DefaultDueDays <= 0 {
		c.Invoice.DefaultDueDays = 30
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.Auth.LoginRatePerMinute <= 0 {
		c.Auth.LoginRatePerMinute = 10
	}
	c.Company.Currency = strings.ToUpper(strings.TrimSpace(c.Company.Currency))
	if c.Company.Currency == "" {
		c.Company.Currency = "USD"
	}
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errNoKey
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if !money.ValidCurrency(c.Company.Currency) {
		return fmt.Errorf("unknown company.currency %q", c.Company.Currency)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// SaveSettings writes the company and invoice sections into the config file,
// leaving every other key in the file as it was, and makes them current.
// Values that came from the environment are never written out.
func SaveSettings(company Company, invoice Invoice) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	next := cfg
	next.Company = company
	next.Invoice = invoice
	applyFallbacks(&next)

	doc := map[string]any{}
	content, err := os.ReadFile(cfgPath)
	switch {
	case err == nil:
		if err := yamlv3.Unmarshal(content, &doc); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", cfgPath, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", cfgPath, err)
	}
	doc["company"] = next.Company
	doc["invoice"] = next.Invoice

	out, err := yamlv3.Marshal(doc)
	if err != nil {
		return Config{}, err
	}
	if dir := filepath.Dir(cfgPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, err
		}
	}
	if err := os.WriteFile(cfgPath, out, 0o600); err != nil {
		return Config{}, err
	}
	cfg = next
	return next, nil
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch reloads the config file in the background whenever it is written and
// calls onChange with the new value. Watching stops when ctx is done.
func Watch(ctx context.Context, log *zap.Logger, onChange func(Config)) error {
	mu.RLock()
	path := cfgPath
	mu.RUnlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	// Watch the directory: editors replace the file rather than write it.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				next, err := read(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous settings", zap.Error(err))
					continue
				}
				mu.Lock()
				cfg = next
				mu.Unlock()
				log.Info("config reloaded", zap.String("path", path))
				if onChange != nil {
					onChange(next)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
