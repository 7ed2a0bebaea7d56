package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

func clearOfficialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"WX_APPID", "OFFICIAL_APPID", "WX_SECRET", "OFFICIAL_SECRET", "WX_TOKEN", "OFFICIAL_TOKEN",
		"STORE_ENV_ID", "TCB_ENV_ID", "WX_ENV", "ENV_ID", "STORE_DRIVER", "POSTGRES_DSN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearOfficialEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.weixin.qq.com", cfg.Official.APIBaseURL)
	assert.Equal(t, 1800, cfg.Official.QRCodeExpireSeconds)
	assert.Equal(t, 100*time.Second, cfg.Official.TokenMargin())
	assert.Equal(t, 7000*time.Second, cfg.Official.TokenFallback())
	assert.Equal(t, 5*time.Second, cfg.Official.UpstreamTimeout())
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
}

func TestLoadReadsAliases(t *testing.T) {
	clearOfficialEnv(t)
	t.Setenv("OFFICIAL_APPID", "wx-app")
	t.Setenv("OFFICIAL_SECRET", "wx-secret")
	t.Setenv("TCB_ENV_ID", "prod-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wx-app", cfg.Official.AppID)
	assert.Equal(t, "wx-secret", cfg.Official.AppSecret)
	assert.Equal(t, "prod-env", cfg.Store.EnvID)
	assert.NoError(t, cfg.Official.ValidateCredentials())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearOfficialEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		err := OfficialConfig{AppID: "wx"}.ValidateCredentials()
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, "CONFIG_MISSING"))
		assert.Contains(t, err.Error(), "WX_SECRET")
	})

	t.Run("missing handshake token", func(t *testing.T) {
		assert.Error(t, OfficialConfig{}.ValidateHandshake())
		assert.NoError(t, OfficialConfig{Token: "tk"}.ValidateHandshake())
	})

	t.Run("store", func(t *testing.T) {
		assert.NoError(t, StoreConfig{Driver: StoreDriverMemory}.Validate(PostgresConfig{}))
		err := StoreConfig{Driver: StoreDriverPostgres}.Validate(PostgresConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STORE_ENV_ID")
		assert.Contains(t, err.Error(), "POSTGRES_DSN")
		assert.NoError(t, StoreConfig{Driver: StoreDriverPostgres, EnvID: "env"}.Validate(PostgresConfig{DSN: "postgres://x"}))
	})
}
