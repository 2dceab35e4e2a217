package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, ":8084", cfg.HTTP.Addr)
	assert.Equal(t, "disk", cfg.Mapper.BlobBackend)
	assert.Equal(t, 300*time.Second, cfg.Mapper.TableLifetime)
	assert.Equal(t, 600*time.Second, cfg.Mapper.BulkLifetime)
	assert.Equal(t, 10*time.Second, cfg.Mapper.SweepInterval)
	assert.True(t, cfg.Mapper.LoadingEnabled)
	assert.True(t, cfg.Mapper.UniProt.SecondaryToPrimary)
	assert.False(t, cfg.Mapper.UniProt.TremblToSwissProt)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "15432")
	t.Setenv("MAPPER_BLOB_BACKEND", "redis")
	t.Setenv("MAPPER_TABLE_LIFETIME", "2m")
	t.Setenv("MAPPER_BULK_LIFETIME", "900") // 纯数字按秒解释
	t.Setenv("MAPPER_LOADING_ENABLED", "false")
	t.Setenv("MAPPER_UNIPROT_TREMBL_SWISSPROT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "redis", cfg.Mapper.BlobBackend)
	assert.Equal(t, 2*time.Minute, cfg.Mapper.TableLifetime)
	assert.Equal(t, 15*time.Minute, cfg.Mapper.BulkLifetime)
	assert.False(t, cfg.Mapper.LoadingEnabled)
	assert.True(t, cfg.Mapper.UniProt.TremblToSwissProt)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "mapper",
		Password: "secret",
		Database: "biomapper",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=mapper password=secret dbname=biomapper sslmode=require",
		cfg.DSN())
}

func TestInvalidEnvValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("MAPPER_LOADING_ENABLED", "maybe")
	t.Setenv("MAPPER_SWEEP_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Mapper.LoadingEnabled)
	assert.Equal(t, 10*time.Second, cfg.Mapper.SweepInterval)
}
