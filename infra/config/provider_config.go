package config

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// ProviderConfig manages payment provider configurations with optional
// SQLite persistence behind an in-memory cache.
type ProviderConfig struct {
	configs map[string]map[string]string
	storage *SQLiteStorage
	mu      sync.RWMutex
}

// NewProviderConfig creates a memory-only provider configuration
func NewProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		configs: make(map[string]map[string]string),
	}
}

// NewProviderConfigWithStorage creates a provider configuration persisted to SQLite
func NewProviderConfigWithStorage(dbPath string) (*ProviderConfig, error) {
	config := NewProviderConfig()

	storage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config storage: %w", err)
	}
	config.storage = storage

	if err := config.loadFromStorage(); err != nil {
		log.Printf("Warning: Failed to load configurations from storage: %v", err)
	}

	return config, nil
}

// loadFromStorage loads all provider configurations from SQLite
func (c *ProviderConfig) loadFromStorage() error {
	if c.storage == nil {
		return fmt.Errorf("storage not initialized")
	}

	configs, err := c.storage.LoadAllProviderConfigs()
	if err != nil {
		return fmt.Errorf("failed to load configs from storage: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range configs {
		c.configs[k] = v
	}

	return nil
}

// SetConfig sets configuration for a provider
func (c *ProviderConfig) SetConfig(providerName string, config map[string]string) error {
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if len(config) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	providerName = strings.ToLower(providerName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.SaveProviderConfig(providerName, config); err != nil {
			return fmt.Errorf("failed to persist config: %w", err)
		}
	}

	c.configs[providerName] = config
	return nil
}

// GetConfig returns configuration for a provider
func (c *ProviderConfig) GetConfig(providerName string) (map[string]string, error) {
	providerName = strings.ToLower(providerName)

	c.mu.RLock()
	config, exists := c.configs[providerName]
	c.mu.RUnlock()

	if !exists && c.storage != nil {
		stored, err := c.storage.LoadProviderConfig(providerName)
		if err == nil {
			c.mu.Lock()
			c.configs[providerName] = stored
			c.mu.Unlock()
			config = stored
			exists = true
		}
	}

	if !exists {
		return nil, fmt.Errorf("no configuration found for provider: %s", providerName)
	}

	// Return a copy to prevent external modification
	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}

	return configCopy, nil
}

// DeleteConfig deletes a provider configuration
func (c *ProviderConfig) DeleteConfig(providerName string) error {
	if providerName == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	providerName = strings.ToLower(providerName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.DeleteProviderConfig(providerName); err != nil {
			return fmt.Errorf("failed to delete persisted config: %w", err)
		}
	}

	delete(c.configs, providerName)
	return nil
}

// GetAvailableProviders returns all providers that have configurations
func (c *ProviderConfig) GetAvailableProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	providers := make([]string, 0, len(c.configs))
	for provider := range c.configs {
		providers = append(providers, provider)
	}
	return providers
}

// GetStats returns configuration and storage statistics
func (c *ProviderConfig) GetStats() (map[string]any, error) {
	stats := make(map[string]any)

	c.mu.RLock()
	stats["memory_configs"] = len(c.configs)
	c.mu.RUnlock()

	if c.storage != nil {
		storageStats, err := c.storage.GetStats()
		if err != nil {
			stats["storage_error"] = err.Error()
		} else {
			stats["storage"] = storageStats
		}
	} else {
		stats["storage"] = "not_available"
	}

	return stats, nil
}

// Close releases the underlying storage
func (c *ProviderConfig) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}
