package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"price-compare/pkg/models"
)

// Tracker writes one platform's entries for one session. Ledger failures are
// logged and otherwise ignored so a broken ledger never stops a search.
type Tracker struct {
	Ledger    Ledger
	SessionID string
	Platform  models.Platform
	Logger    *zap.Logger

	page, total, count int
}

func (t *Tracker) put(ctx context.Context, status Status, message string) {
	e := Entry{
		Platform:      t.Platform.Key(),
		Status:        status,
		CurrentPage:   t.page,
		TotalPages:    t.total,
		ProductsFound: t.count,
		Message:       message,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := t.Ledger.Put(ctx, t.SessionID, e); err != nil {
		log := t.Logger
		if log == nil {
			log = zap.L()
		}
		log.Warn("progress write failed",
			zap.String("session", t.SessionID), zap.String("platform", e.Platform), zap.Error(err))
	}
}

func (t *Tracker) Start(ctx context.Context, totalPages int) {
	t.total = totalPages
	t.put(ctx, StatusInProgress, fmt.Sprintf("Searching %s...", t.Platform))
}

func (t *Tracker) Update(ctx context.Context, page, total, count int) {
	t.page, t.total, t.count = page, total, count
	t.put(ctx, StatusInProgress, fmt.Sprintf("Page %d: %d products found", page, count))
}

// Progress adapts Update to the scrapers' progress callback.
func (t *Tracker) Progress(ctx context.Context) func(page, total, count int) {
	return func(page, total, count int) {
		t.Update(ctx, page, total, count)
	}
}

func (t *Tracker) Complete(ctx context.Context, count int, message string) {
	t.count = count
	if message == "" {
		message = fmt.Sprintf("Found %d products", count)
	}
	t.put(ctx, StatusCompleted, message)
}

func (t *Tracker) Fail(ctx context.Context, count int, err error) {
	t.count = count
	t.put(ctx, StatusError, err.Error())
}
