package motion

import (
	"context"
	"time"

	"github.com/calvan/enf-analysis/pkg/frame"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

const (
	DefaultPreviewInterval = 300 * time.Millisecond
)

// StartPreview periodically renders the motion-free image (see SteadyImage)
// into a single-slot channel. A rendered image is dropped if the previous
// one was not consumed yet. The channel is closed when ctx is done.
//
// Must be called after FirstFrame.
func (d *Detector) StartPreview(
	ctx context.Context,
	interval time.Duration,
) <-chan *frame.Frame {
	ch := make(chan *frame.Frame, 1)
	if !d.Initialized() {
		close(ch)
		return ch
	}
	if interval <= 0 {
		interval = DefaultPreviewInterval
	}

	observability.Go(ctx, func() {
		defer close(ch)
		logger.Tracef(ctx, "preview loop")
		defer func() { logger.Tracef(ctx, "/preview loop") }()

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			if len(ch) > 0 {
				continue
			}
			img := d.SteadyImage(true)
			select {
			case ch <- img:
			default:
				logger.Tracef(ctx, "preview dropped")
			}
		}
	})
	return ch
}
