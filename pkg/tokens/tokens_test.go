package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCounterScalesWithLength(t *testing.T) {
	c := EstimateCounter{}

	assert.Zero(t, c.Count(""))
	short := c.Count("hello")
	long := c.Count(strings.Repeat("hello world ", 40))
	assert.Greater(t, long, short)
}

func TestEstimateCounterDeterministic(t *testing.T) {
	c := EstimateCounter{}
	s := "Meiji Shrine sits in a forested park near Harajuku."
	assert.Equal(t, c.Count(s), c.Count(s))
}

func TestBPECounterCountsTokens(t *testing.T) {
	c := NewCounter()

	assert.Greater(t, c.Count("hello world"), 0)
	assert.Greater(t, c.Count(strings.Repeat("tokyo travel ", 50)), c.Count("tokyo travel"))
}
