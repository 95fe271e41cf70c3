package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullConfig = `{
  "version": "v1",
  "server": {
    "addr": ":9090",
    "baseURL": {"$env": "TEST_BASE_URL"},
    "allowedOrigins": ["https://example.com"]
  },
  "decap": {
    "provider": "github",
    "clientId": {"$env": "TEST_CLIENT_ID"},
    "clientSecret": {"$env": "TEST_CLIENT_SECRET"},
    "stateSecret": {"$env": "TEST_STATE_SECRET"},
    "stateTtl": "5m",
    "exchangeTimeout": "3s"
  },
  "webhook": {
    "secret": {"$env": "TEST_WEBHOOK_SECRET"}
  }
}`

func TestLoad(t *testing.T) {
	t.Setenv("TEST_BASE_URL", "https://example.com")
	t.Setenv("TEST_CLIENT_ID", "client-id")
	t.Setenv("TEST_CLIENT_SECRET", "client-secret")
	t.Setenv("TEST_STATE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_WEBHOOK_SECRET", "test-secret-key")

	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://example.com", cfg.Server.BaseURL)
	assert.Equal(t, DefaultRequestsPerMinute, cfg.Server.RateLimit.RequestsPerMinute)

	require.NotNil(t, cfg.Decap)
	assert.Equal(t, "client-id", cfg.Decap.ClientID)
	assert.Equal(t, Secret("client-secret"), cfg.Decap.ClientSecret)
	assert.Equal(t, 5*time.Minute, cfg.Decap.StateTTL)
	assert.Equal(t, 3*time.Second, cfg.Decap.ExchangeTimeout)
	assert.Equal(t, []string{"repo", "user"}, cfg.Decap.Scopes)
	assert.Equal(t, StorageMemory, cfg.Decap.Storage)
	assert.Equal(t, "https://example.com/api/decap/callback", cfg.Decap.RedirectURI)
	assert.True(t, cfg.Decap.HasCredentials())

	require.NotNil(t, cfg.Webhook)
	assert.Equal(t, Secret("test-secret-key"), cfg.Webhook.Secret)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path)
	assert.Equal(t, int64(DefaultWebhookMaxBodyBytes), cfg.Webhook.MaxBodyBytes)
}

func TestLoad_MissingCredentialsStillLoads(t *testing.T) {
	t.Setenv("TEST_BASE_URL", "https://example.com")
	t.Setenv("TEST_CLIENT_ID", "")
	t.Setenv("TEST_CLIENT_SECRET", "")
	t.Setenv("TEST_STATE_SECRET", "")
	t.Setenv("TEST_WEBHOOK_SECRET", "")

	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)
	assert.False(t, cfg.Decap.HasCredentials())

	paths := []string{}
	for _, w := range Warnings(&cfg) {
		paths = append(paths, w.Path)
	}
	assert.Contains(t, paths, "decap.clientId")
	assert.Contains(t, paths, "decap.clientSecret")
	assert.Contains(t, paths, "decap.stateSecret")
	assert.Contains(t, paths, "webhook.secret")
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("TEST_BASE_URL", "https://example.com")

	tests := []struct {
		name        string
		content     string
		expectError string
	}{
		{
			name:        "missing version",
			content:     `{"server": {"baseURL": "https://example.com"}, "webhook": {}}`,
			expectError: "config version is required",
		},
		{
			name:        "unsupported version",
			content:     `{"version": "v0", "server": {"baseURL": "https://example.com"}, "webhook": {}}`,
			expectError: "unsupported config version",
		},
		{
			name:        "inline secret",
			content:     `{"version": "v1", "server": {"baseURL": "https://example.com"}, "webhook": {"secret": "plain"}}`,
			expectError: "webhook.secret must use environment variable reference",
		},
		{
			name:        "unset base url env",
			content:     `{"version": "v1", "server": {"baseURL": {"$env": "TEST_UNSET_BASE"}}, "webhook": {}}`,
			expectError: "environment variable TEST_UNSET_BASE not set",
		},
		{
			name:        "nothing configured",
			content:     `{"version": "v1", "server": {"baseURL": "https://example.com"}}`,
			expectError: "at least one of decap or webhook must be configured",
		},
		{
			name:        "bad duration",
			content:     `{"version": "v1", "server": {"baseURL": "https://example.com"}, "decap": {"stateTtl": "soon"}}`,
			expectError: "parsing stateTtl",
		},
		{
			name:        "firestore without project",
			content:     `{"version": "v1", "server": {"baseURL": "https://example.com"}, "decap": {"storage": "firestore"}}`,
			expectError: "gcpProject is required",
		},
		{
			name:        "unknown provider",
			content:     `{"version": "v1", "server": {"baseURL": "https://example.com"}, "decap": {"provider": "bitbucket"}}`,
			expectError: "unknown provider: bitbucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Server: ServerConfig{BaseURL: "https://example.com"},
			Decap:  &DecapConfig{},
			Webhook: &WebhookConfig{
				Secret: "s",
			},
		}
		require.NoError(t, ApplyDefaults(cfg))
		return cfg
	}

	require.NoError(t, ValidateConfig(valid()))

	cfg := valid()
	cfg.Server.BaseURL = "example.com"
	assert.ErrorContains(t, ValidateConfig(cfg), "absolute URL")

	cfg = valid()
	cfg.Decap.StateSecret = "short"
	assert.ErrorContains(t, ValidateConfig(cfg), "stateSecret must be at least 32 characters")

	cfg = valid()
	cfg.Decap.StateTTL = 2 * time.Hour
	assert.ErrorContains(t, ValidateConfig(cfg), "stateTtl")

	cfg = valid()
	cfg.Webhook.Path = "/api/decap/hook"
	assert.ErrorContains(t, ValidateConfig(cfg), "cannot live under")

	cfg = valid()
	cfg.Decap.Hostname = "https://github.example.com"
	assert.ErrorContains(t, ValidateConfig(cfg), "bare host name")
}

func TestApplyDefaults_GitLabScopes(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{BaseURL: "https://example.com/"},
		Decap:  &DecapConfig{Provider: ProviderGitLab},
	}
	require.NoError(t, ApplyDefaults(cfg))
	assert.Equal(t, []string{"api"}, cfg.Decap.Scopes)
	assert.Equal(t, "https://example.com/api/decap/callback", cfg.Decap.RedirectURI)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SITERELAY_BASE_URL", "https://example.com")
	t.Setenv("SITERELAY_ALLOWED_ORIGINS", "https://example.com,https://www.example.com")
	t.Setenv("DECAP_GITHUB_CLIENT_ID", "env-client")
	t.Setenv("DECAP_GITHUB_CLIENT_SECRET", "env-secret")
	t.Setenv("DECAP_OAUTH_STATE_TTL", "2m")
	t.Setenv("CAL_WEBHOOK_SECRET", "hook-secret")

	cfg, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, []string{"https://example.com", "https://www.example.com"}, cfg.Server.AllowedOrigins)
	require.NotNil(t, cfg.Decap)
	assert.Equal(t, "env-client", cfg.Decap.ClientID)
	assert.Equal(t, 2*time.Minute, cfg.Decap.StateTTL)
	assert.Equal(t, DefaultExchangeTimeout, cfg.Decap.ExchangeTimeout)
	require.NotNil(t, cfg.Webhook)
	assert.Equal(t, Secret("hook-secret"), cfg.Webhook.Secret)
}

func TestLoadEnv_ProviderNeutralCredentials(t *testing.T) {
	t.Setenv("SITERELAY_BASE_URL", "https://example.com")
	t.Setenv("DECAP_OAUTH_PROVIDER", "gitlab")
	t.Setenv("DECAP_OAUTH_CLIENT_ID", "gitlab-client")
	t.Setenv("DECAP_OAUTH_CLIENT_SECRET", "gitlab-secret")
	t.Setenv("DECAP_GITHUB_CLIENT_ID", "legacy-client")
	t.Setenv("DECAP_GITHUB_CLIENT_SECRET", "legacy-secret")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	require.NotNil(t, cfg.Decap)
	assert.Equal(t, ProviderGitLab, cfg.Decap.Provider)
	assert.Equal(t, "gitlab-client", cfg.Decap.ClientID)
	assert.Equal(t, Secret("gitlab-secret"), cfg.Decap.ClientSecret)

	t.Setenv("DECAP_OAUTH_CLIENT_ID", "")
	t.Setenv("DECAP_OAUTH_CLIENT_SECRET", "")
	cfg, err = LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "legacy-client", cfg.Decap.ClientID)
	assert.Equal(t, Secret("legacy-secret"), cfg.Decap.ClientSecret)
}

func TestLoadEnv_DisableDecap(t *testing.T) {
	t.Setenv("SITERELAY_BASE_URL", "https://example.com")
	t.Setenv("SITERELAY_DISABLE_DECAP", "true")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Nil(t, cfg.Decap)
	assert.NotNil(t, cfg.Webhook)
}

func TestValidateFile(t *testing.T) {
	path := writeConfig(t, `{
  "version": "v1",
  "server": {"baseURL": "$BASE_URL"},
  "decap": {"clientSecret": "inline", "provider": "bitbucket"}
}`)

	result, err := ValidateFile(path)
	require.NoError(t, err)
	assert.False(t, result.IsValid())

	messages := []string{}
	for _, e := range result.Errors {
		messages = append(messages, e.Path)
	}
	assert.Contains(t, messages, "server.baseURL")
	assert.Contains(t, messages, "decap.clientSecret")
	assert.Contains(t, messages, "decap.provider")
}

func TestSecretRedaction(t *testing.T) {
	secret := Secret("super-secret-password")
	assert.Equal(t, "***", secret.String())
	assert.Equal(t, "value: ***", fmt.Sprintf("value: %s", secret))
	assert.Equal(t, "", Secret("").String())

	data, err := json.Marshal(struct {
		Password Secret `json:"password"`
	}{Password: secret})
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"***"}`, string(data))
}

func TestLoad_AddrFromEnv(t *testing.T) {
	t.Setenv("TEST_ADDR", "127.0.0.1:18080")

	cfg, err := Load(writeConfig(t, `{
		"version": "v1",
		"server": {"addr": {"$env": "TEST_ADDR"}, "baseURL": "https://example.com"},
		"webhook": {"secret": {"$env": "TEST_UNSET_WEBHOOK_SECRET"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18080", cfg.Server.Addr)

	t.Setenv("TEST_ADDR", "")
	cfg, err = Load(writeConfig(t, `{
		"version": "v1",
		"server": {"addr": {"$env": "TEST_ADDR"}, "baseURL": "https://example.com"},
		"webhook": {"secret": {"$env": "TEST_UNSET_WEBHOOK_SECRET"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
}

func TestApplyDefaults_AllowedOrigins(t *testing.T) {
	cfg := Config{Server: ServerConfig{BaseURL: "https://www.example.com/portfolio/"}}
	require.NoError(t, ApplyDefaults(&cfg))
	assert.Equal(t, []string{"https://www.example.com"}, cfg.Server.AllowedOrigins)

	cfg = Config{Server: ServerConfig{
		BaseURL:        "https://www.example.com",
		AllowedOrigins: []string{" https://admin.example.com/ ", "http://localhost:4321/admin"},
	}}
	require.NoError(t, ApplyDefaults(&cfg))
	assert.Equal(t, []string{"https://admin.example.com", "http://localhost:4321"}, cfg.Server.AllowedOrigins)

	cfg = Config{Server: ServerConfig{BaseURL: "https://www.example.com", AllowedOrigins: []string{"admin.example.com"}}}
	assert.ErrorContains(t, ApplyDefaults(&cfg), "server.allowedOrigins")
}
