package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValeursParDefaut(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "facturation.db", cfg.App.JournalPath)
	assert.Equal(t, "credentials.json", cfg.Google.CredentialsFile)
	assert.Equal(t, "token.json", cfg.Google.TokenFile)
	assert.Equal(t, 3, cfg.Emission.MaxTransientRetries)
}

func TestLoad_EnvPrioritaire(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PRACTICE_NAME", "Cabinet Berthier")
	t.Setenv("MAX_TRANSIENT_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "Cabinet Berthier", cfg.Practice.Name)
	assert.Equal(t, 5, cfg.Emission.MaxTransientRetries)
}

func TestValidate_ChampsRequis(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_FOLDER_ID")
	assert.Contains(t, err.Error(), "PRACTICE_NAME")

	cfg.Google.FolderID = "folder"
	cfg.Google.SpreadsheetID = "sheet"
	cfg.Practice.Name = "Cabinet Berthier"
	cfg.Practice.Email = "cabinet@example.fr"
	assert.NoError(t, cfg.Validate())
}
