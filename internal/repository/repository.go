package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gameshop/internal/config"
	"gameshop/internal/docstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOperation    = errors.New("invalid balance operation")
)

type Repository struct {
	store  *docstore.Store
	bins   config.Bins
	logger *zap.Logger
	now    func() time.Time
}

func New(store *docstore.Store, bins config.Bins, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, bins: bins, logger: logger, now: time.Now}
}

// SetClock replaces the time source used for timestamps and day boundaries.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC()
}

// load reads a collection for a read path. A failed read degrades to the
// empty collection unless the caller's context is done.
func load[T any](ctx context.Context, r *Repository, collectionID string) (T, error) {
	doc, err := docstore.Load[T](ctx, r.store, collectionID, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return doc, ctxErr
		}
		r.logger.Warn("collection_read_failed", zap.String("collection", collectionID), zap.Error(err))
		var empty T
		return empty, nil
	}
	return doc, nil
}

func modify[T any](ctx context.Context, r *Repository, collectionID string, fn func(doc *T) error) (T, error) {
	doc, err := docstore.Modify(ctx, r.store, collectionID, fn)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyProcessed) {
		return doc, fmt.Errorf("write %s: %w", collectionID, err)
	}
	return doc, err
}

func newID() string {
	return "id_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newOrderID builds the display id: ORD, the last 8 digits of the unix
// millisecond clock and 4 random upper-case characters.
func newOrderID(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return "ORD" + ms + suffix
}

func telegramKey(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

func sameDayUTC(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func ptr[T any](v T) *T {
	return &v
}
