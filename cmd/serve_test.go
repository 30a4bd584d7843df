package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/expenses-mcp/internal/auth"
	"github.com/teemow/expenses-mcp/internal/expenses"
	"github.com/teemow/expenses-mcp/internal/instrumentation"
	"github.com/teemow/expenses-mcp/internal/kvstore"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "muster-client",
			expected: []string{"muster-client"},
		},
		{
			name:     "multiple values",
			input:    "muster-client,other-client",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "values with spaces around comma",
			input:    "muster-client, other-client",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "values with leading/trailing spaces",
			input:    "  muster-client  ,  other-client  ",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "trailing comma",
			input:    "muster-client,other-client,",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "leading comma",
			input:    ",muster-client,other-client",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "multiple consecutive commas",
			input:    "muster-client,,other-client",
			expected: []string{"muster-client", "other-client"},
		},
		{
			name:     "only commas and spaces",
			input:    ",  , , ",
			expected: []string{},
		},
		{
			name:     "single value with surrounding whitespace",
			input:    "  muster-client  ",
			expected: []string{"muster-client"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseCommaSeparatedList(tt.input)

			// Handle nil vs empty slice comparison
			if tt.expected == nil {
				if result != nil {
					t.Errorf("parseCommaSeparatedList(%q) = %v, want nil", tt.input, result)
				}
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("parseCommaSeparatedList(%q) = %v (len %d), want %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
				return
			}

			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCommaSeparatedList(%q)[%d] = %q, want %q",
						tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}

// newTestViper returns a viper instance bound to a fresh flag set.
func newTestViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	registerServeFlags(v, fs)
	require.NoError(t, fs.Parse(args))
	return v
}

func TestServeConfigFromViper_Defaults(t *testing.T) {
	cfg, err := serveConfigFromViper(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, defaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.KVStoreType)
	assert.Equal(t, StoreMemory, cfg.ExpenseStoreType)
	assert.Equal(t, kvstore.DefaultCollection, cfg.KVDefaultCollection)
	assert.Equal(t, auth.ProviderNone, cfg.Auth.Provider)
	assert.Empty(t, cfg.BaseURL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, defaultMetricsAddr, cfg.Metrics.Addr)
}

func TestServeConfigFromViper_Environment(t *testing.T) {
	t.Setenv("MCP_AUTH_PROVIDER", "keycloak")
	t.Setenv("KEYCLOAK_REALM_URL", "https://keycloak.example.com/realms/mcp")
	t.Setenv("KEYCLOAK_MCP_SERVER_AUDIENCE", "expenses")
	t.Setenv("MCP_BASE_URL", "https://mcp.example.com/")
	t.Setenv("MCP_OAUTH_CLIENT_TTL", "3600")
	t.Setenv("MCP_OAUTH_REGISTRATION_TOKEN", "s3cret")

	cfg, err := serveConfigFromViper(newTestViper(t, "--transport", "streamable-http"))
	require.NoError(t, err)

	assert.Equal(t, auth.ProviderKeycloak, cfg.Auth.Provider)
	assert.Equal(t, "expenses", cfg.Auth.Audience)
	assert.Equal(t, "https://mcp.example.com", cfg.BaseURL)
	assert.Equal(t, cfg.BaseURL, cfg.Auth.ResourceURL)
	assert.Equal(t, cfg.BaseURL, cfg.Registry.BaseURL)
	assert.Equal(t, time.Hour, cfg.Registry.ClientTTL)
	assert.Equal(t, "s3cret", cfg.Registry.RegistrationToken)
}

func TestServeConfigFromViper_FlagOverridesEnvironment(t *testing.T) {
	t.Setenv("EXPENSE_STORE_TYPE", "cosmos")

	cfg, err := serveConfigFromViper(newTestViper(t, "--expense-store-type", "memory"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.ExpenseStoreType)
}

func TestServeConfigFromViper_EntraIgnoresKeycloakAudience(t *testing.T) {
	t.Setenv("MCP_AUTH_PROVIDER", "entra_proxy")
	t.Setenv("AZURE_TENANT_ID", "tenant")
	t.Setenv("ENTRA_PROXY_AZURE_CLIENT_ID", "client")

	cfg, err := serveConfigFromViper(newTestViper(t, "--transport", "streamable-http", "--http-addr", ":9000"))
	require.NoError(t, err)

	assert.Equal(t, auth.ProviderEntra, cfg.Auth.Provider)
	assert.Empty(t, cfg.Auth.Audience)
	assert.Equal(t, "client", cfg.Auth.ExpectedAudience())
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
}

func TestServeConfig_Validate(t *testing.T) {
	valid := func() ServeConfig {
		return ServeConfig{
			Transport:        TransportStdio,
			KVStoreType:      StoreMemory,
			ExpenseStoreType: StoreMemory,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ServeConfig)
		wantErr string
	}{
		{
			name:   "stdio with memory stores",
			mutate: func(*ServeConfig) {},
		},
		{
			name:    "unknown transport",
			mutate:  func(c *ServeConfig) { c.Transport = "sse" },
			wantErr: "unsupported transport type",
		},
		{
			name:    "unknown kv store",
			mutate:  func(c *ServeConfig) { c.KVStoreType = "valkey" },
			wantErr: "unsupported KV store type",
		},
		{
			name:    "redis without url",
			mutate:  func(c *ServeConfig) { c.KVStoreType = StoreRedis },
			wantErr: "REDIS_URL is required",
		},
		{
			name: "redis with bad url",
			mutate: func(c *ServeConfig) {
				c.KVStoreType = StoreRedis
				c.RedisURL = "http://localhost:6379"
			},
			wantErr: "invalid REDIS_URL",
		},
		{
			name:    "unknown expense store",
			mutate:  func(c *ServeConfig) { c.ExpenseStoreType = StoreRedis },
			wantErr: "unsupported expense store type",
		},
		{
			name:    "cosmos without account",
			mutate:  func(c *ServeConfig) { c.ExpenseStoreType = StoreCosmos },
			wantErr: "account or endpoint is required",
		},
		{
			name: "cosmos without user container",
			mutate: func(c *ServeConfig) {
				c.ExpenseStoreType = StoreCosmos
				c.Cosmos.Account = "acct"
				c.Cosmos.Database = "db0"
			},
			wantErr: "user container is required",
		},
		{
			name:    "negative client ttl",
			mutate:  func(c *ServeConfig) { c.Registry.ClientTTL = -time.Second },
			wantErr: "must not be negative",
		},
		{
			name:    "http without auth provider",
			mutate:  func(c *ServeConfig) { c.Transport = TransportStreamableHTTP },
			wantErr: "authentication provider is required",
		},
		{
			name: "http with incomplete entra",
			mutate: func(c *ServeConfig) {
				c.Transport = TransportStreamableHTTP
				c.Auth = auth.Config{Provider: auth.ProviderEntra, ResourceURL: "https://mcp.example.com"}
			},
			wantErr: "tenant ID is required",
		},
		{
			name: "http without base url",
			mutate: func(c *ServeConfig) {
				c.Transport = TransportStreamableHTTP
				c.Auth = auth.Config{Provider: auth.ProviderKeycloak, RealmURL: "https://kc.example.com/realms/x", ResourceURL: "https://mcp.example.com"}
			},
			wantErr: "base URL is required",
		},
		{
			name:    "metrics without address",
			mutate:  func(c *ServeConfig) { c.Metrics.Enabled = true },
			wantErr: "metrics address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServeConfig_RedisConfig(t *testing.T) {
	cfg := ServeConfig{RedisURL: "redis://:pw@cache.internal:6380/2", RedisKeyPrefix: "p:"}
	rc, err := cfg.redisConfig()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", rc.Addr)
	assert.Equal(t, "pw", rc.Password)
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, "p:", rc.KeyPrefix)

	cfg = ServeConfig{RedisURL: "localhost:6379"}
	rc, err = cfg.redisConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", rc.Addr)
}

func TestParseDuration(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"":    0,
		"0":   0,
		"90":  90 * time.Second,
		"2h":  2 * time.Hour,
		"15m": 15 * time.Minute,
	} {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseDuration("soon")
	assert.Error(t, err)
}

func TestInstallLibraryLoggers(t *testing.T) {
	assert.NotPanics(t, func() { installLibraryLoggers(nil) })
}

func TestLocalBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", localBaseURL(":8000"))
	assert.Equal(t, "http://localhost:8080", localBaseURL("0.0.0.0:8080"))
	assert.Equal(t, "http://localhost:8000", localBaseURL(""))
}

func TestBuildExpenseRepository_Memory(t *testing.T) {
	repo, err := buildExpenseRepository(ServeConfig{ExpenseStoreType: StoreMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &expenses.MemoryRepository{}, repo)
}

func TestBuildKVStore_Memory(t *testing.T) {
	cfg := ServeConfig{KVStoreType: StoreMemory, KVDefaultCollection: "mcp-kv"}
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{Enabled: false})
	require.NoError(t, err)

	store, closer, err := buildKVStore(context.Background(), cfg, nil, provider, nil)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer.Close()

	assert.Equal(t, "memory", store.Backend().Kind())
	assert.Equal(t, "mcp-kv", store.DefaultCollection())
}
