package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	t.Run("unset uses default", func(t *testing.T) {
		t.Setenv("SOLUGARDE_TEST_DURATION", "")
		require.Equal(t, time.Minute, config.GetEnvDuration("SOLUGARDE_TEST_DURATION", time.Minute))
	})

	t.Run("go duration", func(t *testing.T) {
		t.Setenv("SOLUGARDE_TEST_DURATION", "90s")
		require.Equal(t, 90*time.Second, config.GetEnvDuration("SOLUGARDE_TEST_DURATION", time.Minute))
	})

	t.Run("plain seconds", func(t *testing.T) {
		t.Setenv("SOLUGARDE_TEST_DURATION", "15")
		require.Equal(t, 15*time.Second, config.GetEnvDuration("SOLUGARDE_TEST_DURATION", time.Minute))
	})

	t.Run("garbage uses default", func(t *testing.T) {
		t.Setenv("SOLUGARDE_TEST_DURATION", "soon")
		require.Equal(t, time.Minute, config.GetEnvDuration("SOLUGARDE_TEST_DURATION", time.Minute))
	})
}

func TestNew_Defaults(t *testing.T) {
	t.Setenv("SOLUGARDE_API_BASE_URL", "")
	t.Setenv("SOLUGARDE_STORAGE_PREFIX", "")

	c := config.New()
	require.Equal(t, config.DefaultAPIBaseURL, c.GetAPIBaseURL())
	require.Equal(t, "solugarde_", c.GetStorageKeyPrefix())
	require.Equal(t, 30*time.Second, c.GetAPITimeout())
	require.Equal(t, 5*time.Minute, c.GetRefreshThreshold())
}
