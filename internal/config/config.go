// Package config loads the application's TOML configuration file,
// applies command-line flag overrides through viper/pflag, and exposes
// a reload channel driven by fsnotify so a long-running process can pick
// up an edited config file without a restart.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the application's top-level configuration, decoded from
// config.toml and overridable per-field from the command line.
type Config struct {
	RootDir           string        `toml:"root_dir"`
	ListenAddress     string        `toml:"listen_address"`
	FrontendRoot      string        `toml:"frontend_root"`
	DefaultAdminEmail string        `toml:"default_admin_email"`
	AuthTokenLength   int           `toml:"auth_token_length"`
	SessionTTL        time.Duration `toml:"session_ttl"`

	Redcap RedcapConfig `toml:"redcap"`
	SMTP   SMTPConfig   `toml:"smtp"`
	Log    LogConfig    `toml:"log"`
}

// RedcapConfig configures the REDCap ingestion client.
type RedcapConfig struct {
	APIURL       string `toml:"api_url"`
	Token2020    string `toml:"token_2020"`
	Token2021    string `toml:"token_2021"`
	FieldMapPath string `toml:"field_map_path"`
}

// SMTPConfig configures outgoing token-issuance notification email.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `toml:"level"` // debug | info | warn | error
	JSON  bool   `toml:"json"`
}

// Default returns the configuration a fresh deployment starts from.
func Default() Config {
	return Config{
		RootDir:           "./data",
		ListenAddress:     ":8080",
		FrontendRoot:      "./frontend",
		DefaultAdminEmail: "admin@example.com",
		AuthTokenLength:   32,
		SessionTTL:        30 * 24 * time.Hour,
		Redcap: RedcapConfig{
			FieldMapPath: "./redcap_fields.toml",
		},
		Log: LogConfig{Level: "info", JSON: true},
	}
}

// Load decodes path directly with BurntSushi/toml onto a copy of
// Default(), then layers flag overrides from flags (any flag the caller
// registered and the user actually set takes precedence; unset flags
// leave the file's value alone). A nil flags is accepted for programs
// that only ever read the file.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if flags == nil {
		return cfg, nil
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}
	if flags.Changed("root-dir") {
		cfg.RootDir = v.GetString("root-dir")
	}
	if flags.Changed("listen-address") {
		cfg.ListenAddress = v.GetString("listen-address")
	}
	if flags.Changed("frontend-root") {
		cfg.FrontendRoot = v.GetString("frontend-root")
	}
	if flags.Changed("default-admin-email") {
		cfg.DefaultAdminEmail = v.GetString("default-admin-email")
	}
	if flags.Changed("auth-token-length") {
		cfg.AuthTokenLength = v.GetInt("auth-token-length")
	}
	if flags.Changed("session-ttl") {
		cfg.SessionTTL = v.GetDuration("session-ttl")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}
	return cfg, nil
}

// RegisterFlags adds the overridable subset of Config to flags, for a
// cobra command's PersistentFlags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("root-dir", "", "override config's root_dir")
	flags.String("listen-address", "", "override config's listen_address")
	flags.String("frontend-root", "", "override config's frontend_root")
	flags.String("default-admin-email", "", "override config's default_admin_email")
	flags.Int("auth-token-length", 0, "override config's auth_token_length")
	flags.Duration("session-ttl", 0, "override config's session_ttl")
	flags.String("log-level", "", "override config's log.level")
}

// Watcher reloads Config from path whenever the file changes on disk,
// delivering each successfully-decoded reload on Changes. A decode
// failure on reload is logged by the caller (via the returned error
// channel) and the previous configuration keeps being used.
type Watcher struct {
	Changes chan Config
	Errors  chan error

	watcher *fsnotify.Watcher
	path    string
}

// WatchFile starts watching path for changes, decoding with the file's
// directory (fsnotify watches directories, not bare files, reliably
// across editors that write-then-rename).
func WatchFile(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	dir := dirOf(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w := &Watcher{
		Changes: make(chan Config, 1),
		Errors:  make(chan error, 1),
		watcher: fsw,
		path:    path,
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path, nil)
			if err != nil {
				w.Errors <- err
				continue
			}
			w.Changes <- cfg
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
