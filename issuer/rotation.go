package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/veilvote/veilvote/log"
)

// rotationTick is how often the worker checks whether the current epoch
// has run its interval. Checking is cheap, so it runs much more often
// than epochs actually rotate.
const rotationTick = time.Minute

// Start bootstraps the first epoch if storage has none and launches the
// rotation worker. The worker stops when ctx is canceled or Stop is
// called.
func (i *Issuer) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		return fmt.Errorf("issuer already started")
	}
	if err := i.rotateIfDue(); err != nil {
		return fmt.Errorf("bootstrap epoch: %w", err)
	}
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.startRotationWorker()
	log.Infow("issuer started", "rotationInterval", i.interval.String())
	return nil
}

// Stop halts the rotation worker.
func (i *Issuer) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
		log.Infow("issuer stopped")
	}
}

// startRotationWorker runs the epoch rotation loop. Each tick also prunes
// the policy rate limiter so idle request windows do not pile up.
func (i *Issuer) startRotationWorker() {
	ctx := i.ctx
	ticker := time.NewTicker(rotationTick)
	go func() {
		defer ticker.Stop()
		log.Infow("epoch rotation worker started", "tickInterval", rotationTick.String())
		for {
			select {
			case <-ctx.Done():
				log.Infow("epoch rotation worker stopped")
				return
			case <-ticker.C:
				if err := i.rotateIfDue(); err != nil {
					log.Warnw("epoch rotation failed", "error", err.Error())
				}
				i.pol.Limiter().Prune()
			}
		}
	}()
}
