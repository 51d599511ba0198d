// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "preview-capture", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1200, cfg.Browser.Viewport.Width)
	assert.Equal(t, 800, cfg.Browser.Viewport.Height)
	assert.Equal(t, 1.0, cfg.Browser.Viewport.DeviceScaleFactor)
	assert.Equal(t, "./cookies.json", cfg.Browser.CookieFile)
	assert.Equal(t, "networkidle2", cfg.Navigation.WaitUntil)
	assert.Equal(t, 30*time.Second, cfg.Navigation.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Navigation.IdleQuietPeriod)
	assert.Equal(t, "dismiss", cfg.Auth.Strategy)
	assert.Equal(t, "input[name=email]", cfg.Auth.Selectors.Username)
	assert.Equal(t, "input[name=password]", cfg.Auth.Selectors.Password)
	assert.Equal(t, "button[type=submit]", cfg.Auth.Selectors.Submit)
	assert.Equal(t, "png", cfg.Screenshot.Format)
	assert.False(t, cfg.Storage.Debug)
	assert.True(t, cfg.Browser.IsLocal())
}

// -- Validation Logic Tests --

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Storage.Bucket = "previews"
	cfg.Storage.Region = "ap-southeast-1"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	t.Run("Valid Config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Debug Mode Needs No Bucket", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Storage.Debug = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Missing Bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Bucket = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket and region are required")
	})

	t.Run("Lambda Requires Executable Path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Browser.ExecutionEnv = "AWS_Lambda_go1.x"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executable_path is required")

		cfg.Browser.ExecutablePath = "/tmp/chromium"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Invalid Viewport", func(t *testing.T) {
		cfg := validConfig()
		cfg.Browser.Viewport.Width = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "viewport width and height must be positive integers")
	})

	t.Run("Unknown Strategy", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.Strategy = "guess"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown strategy "guess"`)
	})

	t.Run("Session Strategy Requires Login URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.Strategy = "session"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login_url is required")

		cfg.Auth.LoginURL = "https://trello.com/login"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Invalid Wait Until", func(t *testing.T) {
		cfg := validConfig()
		cfg.Navigation.WaitUntil = "networkidle9"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "navigation.wait_until")
	})

	t.Run("Invalid Screenshot Settings", func(t *testing.T) {
		cfg := validConfig()
		cfg.Screenshot.Format = "gif"
		assert.ErrorContains(t, cfg.Validate(), "screenshot.format must be png or jpeg")

		cfg = validConfig()
		cfg.Screenshot.Quality = 101
		assert.ErrorContains(t, cfg.Validate(), "screenshot.quality must be between 0 and 100")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  viewport:
    width: 412
    height: 915
    mobile: true
  permissions:
    origin: https://www.facebook.com
    types: ["notifications"]
storage:
  bucket: previews
  region: ap-southeast-1
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 412, cfg.Browser.Viewport.Width)
		assert.True(t, cfg.Browser.Viewport.Mobile)
		assert.Equal(t, []string{"notifications"}, cfg.Browser.Permissions.Types)
		assert.Equal(t, "previews", cfg.Storage.Bucket)
		// Redirect region falls back to the storage region.
		assert.Equal(t, "ap-southeast-1", cfg.Redirect.Region)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("storage.debug", false)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Deployed Environment Variable Names", func(t *testing.T) {
		t.Setenv("DEBUG", "true")
		t.Setenv("S3_BUCKET", "legacy-bucket")
		t.Setenv("S3_REGION", "eu-west-1")
		t.Setenv("REDIRECT_BUCKET", "redirects")
		t.Setenv("AWS_EXECUTION_ENV", "AWS_Lambda_provided.al2023")
		t.Setenv("CHROMIUM_EXECUTABLE_PATH", "/tmp/chromium")
		t.Setenv("META_EMAIL", "someone@example.com")
		t.Setenv("META_PASSWORD", "hunter2")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.True(t, cfg.Storage.Debug)
		assert.Equal(t, "legacy-bucket", cfg.Storage.Bucket)
		assert.Equal(t, "eu-west-1", cfg.Storage.Region)
		assert.Equal(t, "redirects", cfg.Redirect.Bucket)
		assert.Equal(t, "eu-west-1", cfg.Redirect.Region)
		assert.False(t, cfg.Browser.IsLocal())
		assert.Equal(t, "/tmp/chromium", cfg.Browser.ExecutablePath)
		assert.Equal(t, "someone@example.com", cfg.Auth.Username)
		assert.Equal(t, "hunter2", cfg.Auth.Password)
	})

	t.Run("Prefixed Variables Win", func(t *testing.T) {
		t.Setenv("S3_BUCKET", "legacy-bucket")
		t.Setenv("PREVIEW_STORAGE_BUCKET", "new-bucket")
		t.Setenv("S3_REGION", "eu-west-1")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "new-bucket", cfg.Storage.Bucket)
	})
}

func TestNewRedirectConfigFromViper(t *testing.T) {
	t.Run("Only Redirect Settings Required", func(t *testing.T) {
		t.Setenv("REDIRECT_BUCKET", "redirects")
		t.Setenv("S3_REGION", "us-east-1")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewRedirectConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "redirects", cfg.Redirect.Bucket)
		assert.Equal(t, "us-east-1", cfg.Redirect.Region)
		assert.Empty(t, cfg.Storage.Bucket)
	})

	t.Run("Missing Redirect Bucket", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		_, err := NewRedirectConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIRECT_BUCKET")
	})
}
