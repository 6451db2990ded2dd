package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsFromEnv(t *testing.T) {
	t.Setenv("BLUESKY_HANDLE", "me.test")
	t.Setenv("BLUESKY_APP_PASSWORD", "secret")
	t.Setenv("PORT", "8081")
	t.Setenv("EMBED_API_KEY", "")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "timelines.db", cfg.DatabasePath)
	assert.Equal(t, "https://bsky.social", cfg.BlueskyPDS)
	assert.Equal(t, "me.test", cfg.BlueskyHandle)
	assert.Equal(t, "jina-embeddings-v3", cfg.EmbedModel)
	assert.Equal(t, time.Minute, cfg.CacheFlush)
	assert.False(t, cfg.ScoringEnabled())
	assert.False(t, cfg.Debug)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("BLUESKY_HANDLE", "me.test")
	t.Setenv("BLUESKY_APP_PASSWORD", "secret")
	t.Setenv("EMBED_API_KEY", "key")
	t.Setenv("PORT", "8081")

	cfg, err := Load([]string{"--port", "9000", "--debug", "--cache-redis-addr", "localhost:6379"})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "localhost:6379", cfg.CacheRedisAddr)
	assert.True(t, cfg.ScoringEnabled())
}

func TestLoad_RequiresCredentials(t *testing.T) {
	for _, key := range []string{"BLUESKY_HANDLE", "BLUESKY_APP_PASSWORD"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := Load([]string{})
	require.Error(t, err)
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("BLUESKY_HANDLE", "me.test")
	t.Setenv("BLUESKY_APP_PASSWORD", "secret")

	_, err := Load([]string{"--port", "0"})
	require.Error(t, err)
}
