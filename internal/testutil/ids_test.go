package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("commit")
	assert.Equal(t, "commit-0001", gen.Generate())
	assert.Equal(t, "commit-0002", gen.Generate())

	assert.Equal(t, "test-0001", NewSequenceGenerator("").Generate())
}
