package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

type SourceFactory interface {
	OpenSource(ctx context.Context, path string) (frame.Source, error)
}

type sourceFactoryWithPriority struct {
	Priority int
	SourceFactory
}

var (
	sourceFactoryRegistryLocker sync.Mutex
	sourceFactoryRegistry       = map[reflect.Type]sourceFactoryWithPriority{}
)

func RegisterSourceFactory(
	priority int,
	sourceFactory SourceFactory,
) {
	t := reflect.ValueOf(sourceFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	sourceFactoryRegistryLocker.Lock()
	defer sourceFactoryRegistryLocker.Unlock()
	if _, ok := sourceFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of frame sources of type %v", t))
	}
	sourceFactoryRegistry[t] = sourceFactoryWithPriority{
		Priority:      priority,
		SourceFactory: sourceFactory,
	}
}

func SourceFactories() []SourceFactory {
	sourceFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []sourceFactoryWithPriority
	for _, factory := range sourceFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sourceFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []SourceFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.SourceFactory)
	}

	return factories
}

var (
	lastSuccessfulSourceFactory       SourceFactory
	lastSuccessfulSourceFactoryLocker sync.Mutex
)

func getLastSuccessfulSourceFactory() SourceFactory {
	lastSuccessfulSourceFactoryLocker.Lock()
	defer lastSuccessfulSourceFactoryLocker.Unlock()
	return lastSuccessfulSourceFactory
}

// OpenSourceAuto opens the path with the first registered factory
// (by priority) that accepts it. The factory that succeeded last time
// is tried first.
func OpenSourceAuto(
	ctx context.Context,
	path string,
) (frame.Source, error) {
	if factory := getLastSuccessfulSourceFactory(); factory != nil {
		source, err := factory.OpenSource(ctx, path)
		if err == nil {
			return source, nil
		}
	}

	var mErr *multierror.Error
	for _, factory := range SourceFactories() {
		source, err := factory.OpenSource(ctx, path)
		logger.Debugf(ctx, "opening %q with %T result is %v", path, factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to open with %T: %w", factory, err))
			continue
		}

		lastSuccessfulSourceFactoryLocker.Lock()
		lastSuccessfulSourceFactory = factory
		lastSuccessfulSourceFactoryLocker.Unlock()
		return source, nil
	}

	if mErr == nil {
		return nil, fmt.Errorf("no frame source factories registered")
	}
	return nil, fmt.Errorf("unable to open %q: %w", path, mErr.ErrorOrNil())
}
