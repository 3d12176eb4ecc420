package presence

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultReconcileInterval = time.Minute

// Reconciler runs Tracker.Reconcile on a fixed interval.
type Reconciler struct {
	tracker  *Tracker
	interval time.Duration
	now      func() time.Time
}

// NewReconciler constructs a presence reconciler.
func NewReconciler(tracker *Tracker, interval time.Duration) *Reconciler {
	if tracker == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{tracker: tracker, interval: interval, now: time.Now}
}

// Start runs the reconcile loop in the background.
func (r *Reconciler) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("presence reconciler started (interval=%s)", r.interval)
}

func (r *Reconciler) run(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		log.WithError(err).Warn("presence reconciler: initial sweep failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				log.WithError(err).Warn("presence reconciler: sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep and logs the resulting counts.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	clock := r.now
	if clock == nil {
		clock = time.Now
	}
	result, err := r.tracker.Reconcile(ctx, clock().UTC())
	if err != nil {
		return result, err
	}
	if result.Changed() > 0 {
		log.WithFields(log.Fields{
			"examined":   result.Examined,
			"to_online":  result.ToOnline,
			"to_away":    result.ToAway,
			"to_offline": result.ToOffline,
		}).Info("presence: statuses reconciled")
	} else {
		log.Debug("presence: no status changes")
	}
	return result, nil
}
