package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeStrings(t *testing.T) {
	assert.Equal(t, []string{"go", "python", "sql"},
		dedupeStrings([]string{"go", "python", "go", " sql ", "", "python"}))
	assert.Empty(t, dedupeStrings(nil))
	assert.Empty(t, dedupeStrings([]string{"", "  "}))
}
