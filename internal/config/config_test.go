package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RequiresRedisURL(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis-url is required")
}

func TestConfig_Validate_RejectsUnknownScheme(t *testing.T) {
	err := Config{RedisURL: "http://localhost:6379"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--redis-url must start with one of")
}

func TestConfig_Validate_AcceptsKnownSchemes(t *testing.T) {
	for _, url := range []string{
		"redis://localhost:6379",
		"rediss://localhost:6379",
		"redis-cluster://a:7000,b:7001",
	} {
		assert.NoError(t, Config{RedisURL: url}.Validate(), url)
	}
}
