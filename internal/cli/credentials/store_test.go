package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIsExpired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		ctx      Context
		expected bool
	}{
		{"no token", Context{}, false},
		{"token without expiry", Context{Token: "t"}, false},
		{"expired in past", Context{Token: "t", ExpiresAt: time.Now().Add(-time.Hour)}, true},
		{"expires within a minute", Context{Token: "t", ExpiresAt: time.Now().Add(30 * time.Second)}, true},
		{"not expired", Context{Token: "t", ExpiresAt: time.Now().Add(2 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ctx.IsExpired())
		})
	}
}

func TestNewStore_HonorsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	store, err := NewStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultConfigDir, ConfigFileName), store.ConfigPath())
}

func TestStoreOperations(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "resolvd", ConfigFileName)

	store, err := OpenStore(path)
	require.NoError(t, err)

	_, err = store.GetCurrentContext()
	assert.ErrorIs(t, err, ErrNoCurrentContext)
	assert.Empty(t, store.ListContexts())

	require.NoError(t, store.SetContext("prod", &Context{RPCAddr: "prod:7060"}))
	require.NoError(t, store.SetContext("local", &Context{RPCAddr: "localhost:7060", AdminURL: "http://localhost:7061"}))
	assert.Equal(t, []string{"local", "prod"}, store.ListContexts())
	assert.Equal(t, "prod", store.GetCurrentContextName())

	require.NoError(t, store.UseContext("local"))
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateToken("abc", expires))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	current, err := reopened.GetCurrentContext()
	require.NoError(t, err)
	assert.Equal(t, "localhost:7060", current.RPCAddr)
	assert.Equal(t, "abc", current.Token)
	assert.True(t, expires.Equal(current.ExpiresAt))

	assert.ErrorIs(t, reopened.UseContext("missing"), ErrContextNotFound)
	require.NoError(t, reopened.DeleteContext("local"))
	assert.Empty(t, reopened.GetCurrentContextName())
	assert.ErrorIs(t, reopened.DeleteContext("local"), ErrContextNotFound)
}

func TestOpenStore_CorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := OpenStore(path)
	assert.Error(t, err)
}
