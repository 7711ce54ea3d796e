package gocv

import (
	"context"

	"github.com/calvan/enf-analysis/pkg/motion"
)

const (
	Priority = 100
)

type Factory struct{}

func init() {
	motion.RegisterSubtractorFactory(Priority, Factory{})
}

func (Factory) NewSubtractor(ctx context.Context) (motion.Subtractor, error) {
	s, err := New(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
