package motion

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Subtractor separates moving pixels from a learned background.
type Subtractor interface {
	// Apply returns the foreground mask of the frame (true for moving
	// pixels, one value per pixel) and updates the background model.
	Apply(ctx context.Context, f *frame.Frame) ([]bool, error)
	Close() error
}

type SubtractorFactory interface {
	NewSubtractor(ctx context.Context) (Subtractor, error)
}

type subtractorFactoryWithPriority struct {
	Priority int
	SubtractorFactory
}

var (
	subtractorFactoryRegistryLocker sync.Mutex
	subtractorFactoryRegistry       = map[reflect.Type]subtractorFactoryWithPriority{}
)

func RegisterSubtractorFactory(
	priority int,
	factory SubtractorFactory,
) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	subtractorFactoryRegistryLocker.Lock()
	defer subtractorFactoryRegistryLocker.Unlock()
	if _, ok := subtractorFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of background subtractors of type %v", t))
	}
	subtractorFactoryRegistry[t] = subtractorFactoryWithPriority{
		Priority:          priority,
		SubtractorFactory: factory,
	}
}

func SubtractorFactories() []SubtractorFactory {
	subtractorFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []subtractorFactoryWithPriority
	for _, factory := range subtractorFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	subtractorFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []SubtractorFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.SubtractorFactory)
	}
	return factories
}

// NewSubtractor returns a subtractor of the first registered factory (by
// priority) that works in this build, or a GaussianSubtractor if none does.
func NewSubtractor(ctx context.Context) Subtractor {
	for _, factory := range SubtractorFactories() {
		s, err := factory.NewSubtractor(ctx)
		if err != nil {
			logger.Debugf(ctx, "unable to initialize a background subtractor with %T: %v", factory, err)
			continue
		}
		logger.Debugf(ctx, "using background subtractor %T", s)
		return s
	}
	return NewGaussianSubtractor()
}

// GaussianSubtractor blurs the luminance with a 5x5 Gaussian and feeds it
// into a Background model.
type GaussianSubtractor struct {
	Model *Background
}

var _ Subtractor = (*GaussianSubtractor)(nil)

func NewGaussianSubtractor() *GaussianSubtractor {
	return &GaussianSubtractor{
		Model: NewBackground(),
	}
}

func (s *GaussianSubtractor) Apply(
	ctx context.Context,
	f *frame.Frame,
) ([]bool, error) {
	return s.Model.Apply(frame.GaussianBlur5(f.GrayPlane(), f.Width, f.Height)), nil
}

func (s *GaussianSubtractor) Close() error {
	return nil
}
