package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 2, c.Count("abcde"))
}

func TestWordCounter(t *testing.T) {
	c := WordCounter{}
	assert.Equal(t, 0, c.Count("   "))
	assert.Equal(t, 3, c.Count("one two\n three"))
}

func TestNewTokenCounterUnknownEncodingFallsBack(t *testing.T) {
	c := NewTokenCounter("no-such-encoding")
	_, ok := c.(EstimateCounter)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Count("12345678"))
}
