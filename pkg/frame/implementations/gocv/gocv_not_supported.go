//go:build !gocv
// +build !gocv

package gocv

import (
	"context"
	"fmt"

	"github.com/calvan/enf-analysis/pkg/frame"
)

type Source = frame.SliceSource

func New(
	ctx context.Context,
	path string,
) (*Source, error) {
	return nil, fmt.Errorf("built without tag 'gocv'")
}
