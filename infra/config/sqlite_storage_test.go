package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "provider_configs.db")
	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestNewSQLiteStorage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "provider_configs.db")

	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NotNil(t, storage)
	defer storage.Close()

	assert.Equal(t, dbPath, storage.path)
	assert.NotNil(t, storage.db)

	// Database file and parent directory were created
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStorage_SaveProviderConfig(t *testing.T) {
	storage := newTestStorage(t)

	tests := []struct {
		name         string
		providerName string
		config       map[string]string
	}{
		{
			name:         "valid_config",
			providerName: "flowpay",
			config: map[string]string{
				"accessKey": "fp_access",
				"secretKey": "fp_secret",
			},
		},
		{
			name:         "update_existing_config",
			providerName: "flowpay",
			config: map[string]string{
				"accessKey":   "updated-access",
				"secretKey":   "updated-secret",
				"environment": "production",
			},
		},
		{
			name:         "second_provider",
			providerName: "stripe",
			config: map[string]string{
				"secretKey": "sk_test_123",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.SaveProviderConfig(tt.providerName, tt.config)
			assert.NoError(t, err)

			loaded, err := storage.LoadProviderConfig(tt.providerName)
			require.NoError(t, err)
			assert.Equal(t, tt.config, loaded)
		})
	}
}

func TestSQLiteStorage_LoadProviderConfig_NotFound(t *testing.T) {
	storage := newTestStorage(t)

	result, err := storage.LoadProviderConfig("missingpay")
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "no configuration found")
}

func TestSQLiteStorage_LoadAllProviderConfigs(t *testing.T) {
	storage := newTestStorage(t)

	testConfigs := map[string]map[string]string{
		"flowpay": {
			"accessKey": "fp_access",
			"secretKey": "fp_secret",
		},
		"stripe": {
			"secretKey": "sk_test_123",
		},
	}

	for name, config := range testConfigs {
		require.NoError(t, storage.SaveProviderConfig(name, config))
	}

	result, err := storage.LoadAllProviderConfigs()
	require.NoError(t, err)
	assert.Equal(t, testConfigs, result)
}

func TestSQLiteStorage_DeleteProviderConfig(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.SaveProviderConfig("flowpay", map[string]string{"accessKey": "fp_access"}))

	err := storage.DeleteProviderConfig("flowpay")
	assert.NoError(t, err)

	_, err = storage.LoadProviderConfig("flowpay")
	assert.Error(t, err)

	// Deleting a missing provider reports an error
	err = storage.DeleteProviderConfig("flowpay")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration found")
}

func TestSQLiteStorage_GetStats(t *testing.T) {
	storage := newTestStorage(t)

	stats, err := storage.GetStats()
	require.NoError(t, err)

	assert.Equal(t, 0, stats["total_configs"])
	assert.Equal(t, storage.path, stats["db_path"])

	require.NoError(t, storage.SaveProviderConfig("flowpay", map[string]string{"accessKey": "fp_access"}))
	require.NoError(t, storage.SaveProviderConfig("stripe", map[string]string{"secretKey": "sk_test_123"}))

	stats, err = storage.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats["total_configs"])
	assert.Greater(t, stats["db_size_bytes"], int64(0))
}

func TestSQLiteStorage_ConcurrentAccess(t *testing.T) {
	storage := newTestStorage(t)

	done := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		go func(id int) {
			defer func() { done <- true }()

			config := map[string]string{
				"accessKey": "fp_access",
				"secretKey": "fp_secret",
			}
			err := storage.SaveProviderConfig("provider"+string(rune('0'+id)), config)
			assert.NoError(t, err)
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	configs, err := storage.LoadAllProviderConfigs()
	require.NoError(t, err)
	assert.Len(t, configs, 10)
}

func TestSQLiteStorage_InvalidJSON(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.db.Exec(`
		INSERT INTO provider_configs (provider_name, config_data)
		VALUES (?, ?)
	`, "broken", "invalid-json")
	require.NoError(t, err)

	_, err = storage.LoadProviderConfig("broken")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config")

	// LoadAllProviderConfigs skips the invalid row and continues
	configs, err := storage.LoadAllProviderConfigs()
	require.NoError(t, err)
	_, exists := configs["broken"]
	assert.False(t, exists)
}

func TestSQLiteStorage_Close(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "provider_configs.db")
	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	assert.NoError(t, storage.Close())

	// Multiple closes should not panic
	storage.Close()
}
