//go:build !gocv
// +build !gocv

package gocv

import (
	"context"
	"testing"

	"github.com/calvan/enf-analysis/pkg/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory(t *testing.T) {
	ctx := context.Background()
	_, err := Factory{}.NewSubtractor(ctx)
	require.Error(t, err)

	factories := motion.SubtractorFactories()
	require.Len(t, factories, 1)
	assert.IsType(t, &motion.GaussianSubtractor{}, motion.NewSubtractor(ctx))
}
