package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/labforge/lims-admin/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// defaultPollInterval controls how often the settings table is checked.
	defaultPollInterval = 5 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
)

// Refresher reloads an in-memory view from the database.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// settingsMark identifies the state of the settings table.
type settingsMark struct {
	latestAt  time.Time
	latestKey string
	count     int64
}

func (m settingsMark) same(other settingsMark) bool {
	return m.count == other.count && m.latestKey == other.latestKey && m.latestAt.Equal(other.latestAt)
}

// SettingsWatcher polls the settings table and refreshes the snapshot when
// another process has written to it.
type SettingsWatcher struct {
	db           *gorm.DB
	target       Refresher
	pollInterval time.Duration

	mu      sync.Mutex
	mark    settingsMark
	hasMark bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSettingsWatcher constructs a watcher; a non-positive interval uses the default.
func NewSettingsWatcher(db *gorm.DB, target Refresher, interval time.Duration) *SettingsWatcher {
	if db == nil || target == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &SettingsWatcher{db: db, target: target, pollInterval: interval}
}

// Start launches the polling goroutine.
func (w *SettingsWatcher) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("settings watcher started (poll_interval=%s)", w.pollInterval)
}

// Stop cancels polling and waits for the goroutine to exit.
func (w *SettingsWatcher) Stop() {
	if w == nil || w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func (w *SettingsWatcher) run(ctx context.Context) {
	w.Poll(ctx, true)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx, false)
		}
	}
}

// Poll compares the table mark with the last one seen and refreshes on change.
// It reports whether a refresh ran.
func (w *SettingsWatcher) Poll(ctx context.Context, force bool) bool {
	if w == nil {
		return false
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	mark, err := w.readMark(qctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("settings watcher: query latest row failed")
		}
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !force && w.hasMark && mark.same(w.mark) {
		return false
	}
	if w.hasMark {
		log.Debugf("settings watcher: settings changed, reloading (latest_updated_at=%s latest_key=%s)", mark.latestAt.Format(time.RFC3339Nano), mark.latestKey)
	}
	if errRefresh := w.target.Refresh(qctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings watcher: refresh failed")
		return false
	}
	w.mark = mark
	w.hasMark = true
	return true
}

func (w *SettingsWatcher) readMark(ctx context.Context) (settingsMark, error) {
	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string    `gorm:"column:key"`
		UpdatedAt time.Time `gorm:"column:updated_at"`
	}
	var mark settingsMark
	if errCount := w.db.WithContext(ctx).Model(&models.Setting{}).Count(&mark.count).Error; errCount != nil {
		return settingsMark{}, errCount
	}
	if mark.count == 0 {
		return mark, nil
	}
	var latest latestRow
	errLatest := w.db.WithContext(ctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC, key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil && !errors.Is(errLatest, gorm.ErrRecordNotFound) {
		return settingsMark{}, errLatest
	}
	mark.latestAt = latest.UpdatedAt.UTC()
	mark.latestKey = strings.TrimSpace(latest.Key)
	return mark, nil
}
