package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory so a developer's own config
// file cannot leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("EXPENSES_CONFIG", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, filepath.Join(home, ".local", "share", "expense-sync", "expenses.db"), c.Storage.Path)
	assert.Equal(t, BackendDrive, c.Remote.Backend)
	assert.Equal(t, "transactions.json", c.Remote.OwnDocument)
	assert.Equal(t, "expenses_app_shared_transactions.json", c.Remote.SharedDocument)
}

func TestLoad_DefaultsRequireRemoteCredentials(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_USER_EMAIL", "me@x.com")
	t.Setenv("EXPENSES_REMOTE_ACCESS_TOKEN", "")

	c, err := Load()
	require.NoError(t, err)

	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.access_token is required")
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_USER_EMAIL", " Me@X.com ")
	t.Setenv("EXPENSES_REMOTE_BACKEND", "drive")
	t.Setenv("EXPENSES_REMOTE_ACCESS_TOKEN", "tok")
	t.Setenv("EXPENSES_STORAGE_DRIVER", "memory")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "me@x.com", c.User.Email)
	assert.Equal(t, BackendDrive, c.Remote.Backend)
	assert.Equal(t, "tok", c.Remote.AccessToken)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.NoError(t, c.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "expenses.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user:
  email: me@x.com
remote:
  backend: gcs
  gcs_bucket: family-expenses
bigquery:
  project: my-project
`), 0o600))
	t.Setenv("EXPENSES_CONFIG", path)
	t.Setenv("EXPENSES_BIGQUERY_PROJECT", "override")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendGCS, c.Remote.Backend)
	assert.Equal(t, "family-expenses", c.Remote.GCSBucket)
	assert.Equal(t, "override", c.BigQuery.Project, "env wins over file")
	assert.Equal(t, "timeline", c.BigQuery.Table)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	t.Setenv("EXPENSES_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		User:    UserConfig{Email: "me@x.com"},
		Storage: StorageConfig{Driver: DriverSQLite, Path: "/tmp/x.db"},
		Remote:  RemoteConfig{Backend: BackendMemory, OwnDocument: "a.json", SharedDocument: "b.json"},
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: `unknown storage.driver "postgres"`},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: "storage.path is required"},
		{name: "unknown backend", mutate: func(c *Config) { c.Remote.Backend = "s3" }, wantErr: `unknown remote.backend "s3"`},
		{name: "drive without token", mutate: func(c *Config) { c.Remote.Backend = BackendDrive }, wantErr: "remote.access_token is required"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Remote.Backend = BackendGCS }, wantErr: "remote.gcs_bucket is required"},
		{name: "no email", mutate: func(c *Config) { c.User.Email = "" }, wantErr: "user.email is required"},
		{name: "same documents", mutate: func(c *Config) { c.Remote.SharedDocument = "a.json" }, wantErr: "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
