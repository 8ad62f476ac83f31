package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceID(t *testing.T) {
	id, err := parseSourceID("-1002678035223")
	require.NoError(t, err)
	assert.Equal(t, int64(-1002678035223), id)

	_, err = parseSourceID("not-a-number")
	assert.Error(t, err)
}

func TestFormatSourceID(t *testing.T) {
	assert.Equal(t, "-1002678035223", formatSourceID(-1002678035223))
	assert.Equal(t, "123", formatSourceID(123))
}

// Repository methods that issue SQL (Create, Save, Upsert, ...) require a
// live pgxpool.Pool and are not tested here; this repository contains no
// integration tests for them.
