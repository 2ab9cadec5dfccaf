package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, StoreFile, cfg.SessionStore)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "9090", cfg.PrometheusPort)
	assert.Equal(t, time.Hour, cfg.JanitorInterval)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, familycode.DefaultPolicy(), cfg.CodePolicy)
	assert.Equal(t, 5, cfg.LoginRatePerMinute)
	assert.Equal(t, 5, cfg.LoginBurst)
}

func TestLoadCodePolicy(t *testing.T) {
	t.Setenv("BACKEND", "memory")
	t.Setenv("FAMILY_CODE_ATTEMPTS", "3")
	t.Setenv("FAMILY_CODE_ON_EXHAUSTION", "proceed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CodePolicy.MaxAttempts)
	assert.Equal(t, familycode.Proceed, cfg.CodePolicy.OnExhaustion)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"BACKEND": "postgres", "DATABASE_URL": ""}},
		{"supabase without keys", map[string]string{"BACKEND": "supabase", "SUPABASE_URL": "", "SUPABASE_ANON_KEY": ""}},
		{"unknown backend", map[string]string{"BACKEND": "mongo"}},
		{"unknown store", map[string]string{"BACKEND": "memory", "SESSION_STORE": "disk"}},
		{"bad duration", map[string]string{"BACKEND": "memory", "JANITOR_INTERVAL": "soon"}},
		{"zero attempts", map[string]string{"BACKEND": "memory", "FAMILY_CODE_ATTEMPTS": "0"}},
		{"zero login rate", map[string]string{"BACKEND": "memory", "LOGIN_RATE_PER_MINUTE": "0"}},
		{"bad exhaustion", map[string]string{"BACKEND": "memory", "FAMILY_CODE_ON_EXHAUSTION": "retry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
