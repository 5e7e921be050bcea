package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"job_id", "j1", "api_key", "sk-123", "Authorization", "Bearer x"})

	assert.Equal(t, []interface{}{"job_id", "j1", "api_key", "[REDACTED]", "Authorization", "[REDACTED]"}, out)
}

func TestSanitizeKVs_OddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"job_id", "j1", "dangling"})

	assert.Equal(t, []interface{}{"job_id", "j1", "dangling"}, out)
}
