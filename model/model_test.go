package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("acc")
	assert.True(t, strings.HasPrefix(id, "acc_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("acc"))
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, PageCount(0, 20))
	assert.Equal(t, 1, PageCount(1, 20))
	assert.Equal(t, 1, PageCount(20, 20))
	assert.Equal(t, 2, PageCount(21, 20))
	assert.Equal(t, 3, PageCount(42, 20))
	assert.Equal(t, 0, PageCount(42, 0))
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Offset(0, 20))
	assert.Equal(t, 0, Offset(1, 20))
	assert.Equal(t, 20, Offset(2, 20))
	assert.Equal(t, 90, Offset(10, 10))
}
