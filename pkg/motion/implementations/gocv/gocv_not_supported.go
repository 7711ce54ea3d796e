//go:build !gocv
// +build !gocv

package gocv

import (
	"context"
	"fmt"

	"github.com/calvan/enf-analysis/pkg/motion"
)

type Subtractor = motion.GaussianSubtractor

func New(
	ctx context.Context,
) (*Subtractor, error) {
	return nil, fmt.Errorf("built without tag 'gocv'")
}
