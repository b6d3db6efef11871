package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildGraphRejectsMissingConfig(t *testing.T) {
	ctx := context.Background()

	_, err := BuildGraph(ctx, nil)
	assert.Error(t, err)

	_, err = BuildGraph(ctx, &GraphConfig{})
	assert.Error(t, err)
}

func TestBuildResponseGraphRequiresRepo(t *testing.T) {
	_, err := BuildResponseGraph(context.Background(), Config{})
	assert.Error(t, err)
}
