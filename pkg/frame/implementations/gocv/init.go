package gocv

import (
	"context"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/calvan/enf-analysis/pkg/frame/registry"
)

const (
	Priority = 100
)

type Factory struct{}

func init() {
	registry.RegisterSourceFactory(Priority, Factory{})
}

func (Factory) OpenSource(ctx context.Context, path string) (frame.Source, error) {
	s, err := New(ctx, path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
