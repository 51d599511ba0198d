// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration for both capture and redirect functions.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot" yaml:"screenshot"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Redirect   RedirectConfig   `mapstructure:"redirect" yaml:"redirect"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	// ExecutionEnv mirrors AWS_EXECUTION_ENV. Empty means we are running on a workstation.
	ExecutionEnv   string            `mapstructure:"execution_env" yaml:"execution_env"`
	ExecutablePath string            `mapstructure:"executable_path" yaml:"executable_path"`
	Headless       bool              `mapstructure:"headless" yaml:"headless"`
	DevTools       bool              `mapstructure:"devtools" yaml:"devtools"`
	DisableGPU     bool              `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args           []string          `mapstructure:"args" yaml:"args"`
	UserAgent      string            `mapstructure:"user_agent" yaml:"user_agent"`
	Viewport       ViewportConfig    `mapstructure:"viewport" yaml:"viewport"`
	CookieFile     string            `mapstructure:"cookie_file" yaml:"cookie_file"`
	LaunchTimeout  time.Duration     `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	Permissions    PermissionsConfig `mapstructure:"permissions" yaml:"permissions"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
}

// IsLocal reports whether the process runs outside of the Lambda execution environment.
func (b BrowserConfig) IsLocal() bool {
	return b.ExecutionEnv == ""
}

// ViewportConfig describes the emulated page viewport.
type ViewportConfig struct {
	Width             int     `mapstructure:"width" yaml:"width"`
	Height            int     `mapstructure:"height" yaml:"height"`
	DeviceScaleFactor float64 `mapstructure:"device_scale_factor" yaml:"device_scale_factor"`
	Mobile            bool    `mapstructure:"mobile" yaml:"mobile"`
}

// PermissionsConfig grants browser permissions (e.g. notifications) to a single origin.
type PermissionsConfig struct {
	Origin string   `mapstructure:"origin" yaml:"origin"`
	Types  []string `mapstructure:"types" yaml:"types"`
}

// NavigationConfig tunes how a page is considered loaded.
type NavigationConfig struct {
	WaitUntil       string        `mapstructure:"wait_until" yaml:"wait_until"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	IdleQuietPeriod time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	WaitForSelector string        `mapstructure:"wait_for_selector" yaml:"wait_for_selector"`
}

// AuthConfig selects the authentication strategy and holds login credentials.
type AuthConfig struct {
	Strategy  string          `mapstructure:"strategy" yaml:"strategy"`
	Flow      string          `mapstructure:"flow" yaml:"flow"`
	Username  string          `mapstructure:"username" yaml:"-"`
	Password  string          `mapstructure:"password" yaml:"-"`
	LoginURL  string          `mapstructure:"login_url" yaml:"login_url"`
	KeyDelay  time.Duration   `mapstructure:"key_delay" yaml:"key_delay"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// SelectorsConfig holds the CSS selectors of the login form.
type SelectorsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Submit   string `mapstructure:"submit" yaml:"submit"`
}

// ScreenshotConfig holds image capture defaults.
type ScreenshotConfig struct {
	Format   string `mapstructure:"format" yaml:"format"`
	Quality  int    `mapstructure:"quality" yaml:"quality"`
	FullPage bool   `mapstructure:"full_page" yaml:"full_page"`
}

// StorageConfig selects and configures the persistence sink.
type StorageConfig struct {
	Debug           bool   `mapstructure:"debug" yaml:"debug"`
	LocalDir        string `mapstructure:"local_dir" yaml:"local_dir"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
	SessionToken    string `mapstructure:"session_token" yaml:"-"`
}

// RedirectConfig configures the bucket receiving generated redirect pages.
type RedirectConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Region string `mapstructure:"region" yaml:"region"`
	// PutsPerSecond caps page uploads per invocation. Zero means unlimited.
	PutsPerSecond float64 `mapstructure:"puts_per_second" yaml:"puts_per_second"`
}

// DatabaseConfig holds the capture ledger connection details. An empty URL disables the ledger.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

var (
	validStrategies = map[string]bool{"none": true, "dismiss": true, "login": true, "auto": true, "session": true}
	validWaitUntil  = map[string]bool{"load": true, "domcontentloaded": true, "networkidle0": true, "networkidle2": true}
	validFlows      = map[string]bool{"single": true, "two_step": true}
	validFormats    = map[string]bool{"png": true, "jpeg": true}
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "preview-capture")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.devtools", false)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.viewport.width", 1200)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.viewport.device_scale_factor", 1.0)
	v.SetDefault("browser.viewport.mobile", false)
	v.SetDefault("browser.cookie_file", "./cookies.json")
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Navigation --
	v.SetDefault("navigation.wait_until", "networkidle2")
	v.SetDefault("navigation.timeout", "30s")
	v.SetDefault("navigation.idle_quiet_period", "500ms")

	// -- Auth --
	v.SetDefault("auth.strategy", "dismiss")
	v.SetDefault("auth.flow", "single")
	v.SetDefault("auth.selectors.username", "input[name=email]")
	v.SetDefault("auth.selectors.password", "input[name=password]")
	v.SetDefault("auth.selectors.submit", "button[type=submit]")

	// -- Screenshot --
	v.SetDefault("screenshot.format", "png")
	v.SetDefault("screenshot.quality", 90)
	v.SetDefault("screenshot.full_page", false)

	// -- Storage --
	v.SetDefault("storage.debug", false)
	v.SetDefault("storage.local_dir", ".")
}

// bindLegacyEnv maps the environment variable names used by the deployed functions onto config keys.
// The PREVIEW_* form produced by AutomaticEnv still takes precedence because it is listed first.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"storage.debug":             {"PREVIEW_STORAGE_DEBUG", "DEBUG"},
		"storage.bucket":            {"PREVIEW_STORAGE_BUCKET", "S3_BUCKET"},
		"storage.region":            {"PREVIEW_STORAGE_REGION", "S3_REGION"},
		"storage.access_key_id":     {"PREVIEW_STORAGE_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"},
		"storage.secret_access_key": {"PREVIEW_STORAGE_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"},
		"storage.session_token":     {"PREVIEW_STORAGE_SESSION_TOKEN", "AWS_SESSION_TOKEN"},
		"browser.execution_env":     {"AWS_EXECUTION_ENV"},
		"browser.executable_path":   {"PREVIEW_BROWSER_EXECUTABLE_PATH", "CHROMIUM_EXECUTABLE_PATH"},
		"redirect.bucket":           {"PREVIEW_REDIRECT_BUCKET", "REDIRECT_BUCKET"},
		"redirect.region":           {"PREVIEW_REDIRECT_REGION", "S3_REGION"},
		"auth.username":             {"PREVIEW_AUTH_USERNAME", "LOGIN_USERNAME", "META_EMAIL"},
		"auth.password":             {"PREVIEW_AUTH_PASSWORD", "LOGIN_PASSWORD", "META_PASSWORD"},
		"database.url":              {"PREVIEW_DATABASE_URL", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults, the optional config file and environment bindings applied.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return v, nil
}

// Decode unmarshals v into a Config without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The redirect function lives in the same region as the screenshot bucket unless told otherwise.
	if cfg.Redirect.Region == "" {
		cfg.Redirect.Region = cfg.Storage.Region
	}
	return &cfg, nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewRedirectConfigFromViper is NewConfigFromViper for the redirect page builder,
// which never launches a browser and only needs the redirect bucket.
func NewRedirectConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Redirect.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: redirect configuration invalid: %w", err)
	}
	return cfg, nil
}

// Load reads the config file (if any) and the environment and returns a validated Config.
func Load(cfgFile string) (*Config, error) {
	v, err := NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// LoadRedirect is Load for the redirect page builder.
func LoadRedirect(cfgFile string) (*Config, error) {
	v, err := NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	return NewRedirectConfigFromViper(v)
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if !validWaitUntil[c.Navigation.WaitUntil] {
		return fmt.Errorf("navigation.wait_until must be one of load, domcontentloaded, networkidle0, networkidle2 (got %q)", c.Navigation.WaitUntil)
	}
	if c.Navigation.Timeout <= 0 {
		return fmt.Errorf("navigation.timeout must be a positive duration")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	if !validFormats[c.Screenshot.Format] {
		return fmt.Errorf("screenshot.format must be png or jpeg (got %q)", c.Screenshot.Format)
	}
	if c.Screenshot.Quality < 0 || c.Screenshot.Quality > 100 {
		return fmt.Errorf("screenshot.quality must be between 0 and 100")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the browser launch settings.
func (b *BrowserConfig) Validate() error {
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("viewport width and height must be positive integers")
	}
	if b.Viewport.DeviceScaleFactor < 0 {
		return fmt.Errorf("viewport device_scale_factor must not be negative")
	}
	if !b.IsLocal() && b.ExecutablePath == "" {
		return fmt.Errorf("executable_path is required when running in %s (hint: set CHROMIUM_EXECUTABLE_PATH)", b.ExecutionEnv)
	}
	return nil
}

// Validate checks the authentication strategy settings.
func (a *AuthConfig) Validate() error {
	if !ValidStrategy(a.Strategy) {
		return fmt.Errorf("unknown strategy %q", a.Strategy)
	}
	if !validFlows[a.Flow] {
		return fmt.Errorf("flow must be single or two_step (got %q)", a.Flow)
	}
	if a.Strategy == "session" && a.LoginURL == "" {
		return fmt.Errorf("login_url is required for the session strategy")
	}
	return nil
}

// Validate checks the storage settings. Debug mode writes to disk and needs no bucket.
func (s *StorageConfig) Validate() error {
	if s.Debug {
		return nil
	}
	if s.Bucket == "" || s.Region == "" {
		return fmt.Errorf("bucket and region are required unless debug is enabled (hint: set S3_BUCKET and S3_REGION)")
	}
	return nil
}

// Validate checks that the redirect bucket is addressable.
func (r *RedirectConfig) Validate() error {
	if r.Bucket == "" || r.Region == "" {
		return fmt.Errorf("bucket and region are required (hint: set REDIRECT_BUCKET and S3_REGION)")
	}
	return nil
}

// ValidStrategy reports whether name is a known authentication strategy.
func ValidStrategy(name string) bool {
	return validStrategies[name]
}
