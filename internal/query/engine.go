// Package query drives the paginated, filterable order browser. It owns the
// filter state and the fetch epoch; nothing else may mutate either.
package query

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/welfarecanteen/portal/internal/backend"
	"github.com/welfarecanteen/portal/internal/domain"
)

const DefaultPageSize = 10

// OrderLister is the slice of the canteen API the engine consumes.
type OrderLister interface {
	ListOrders(ctx context.Context, page, pageSize int, mobile, date string) (backend.ListOrdersResult, error)
}

// Filter is the user-controlled query state. Page is 1-based.
type Filter struct {
	MobileQuery string
	DateISO     string
	Page        int
	PageSize    int
}

// DefaultFilter is the state at mount: today's date, first page.
func DefaultFilter(now time.Time) Filter {
	return Filter{
		DateISO:  now.Format("2006-01-02"),
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// Snapshot is the read-only view handed to subscribers. Orders always
// reflects the most recently issued filter, never a stale response.
type Snapshot struct {
	Orders     []domain.OrderSummary
	TotalCount int
	Filter     Filter
	Loading    bool
	Err        error
}

type Engine struct {
	lister OrderLister
	logger *slog.Logger

	mu       sync.Mutex
	filter   Filter
	epoch    uint64
	snapshot Snapshot
	subs     []func(Snapshot)
	settled  chan struct{}
}

func NewEngine(lister OrderLister, filter Filter, logger *slog.Logger) *Engine {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = DefaultPageSize
	}
	return &Engine{
		lister: lister,
		logger: logger,
		filter: filter,
		snapshot: Snapshot{
			Orders: []domain.OrderSummary{},
			Filter: filter,
		},
	}
}

// Subscribe registers a callback invoked after every applied state change.
func (e *Engine) Subscribe(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Snapshot returns the latest applied state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Filter returns the current filter state.
func (e *Engine) Filter() Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// SetMobileQuery updates the mobile substring filter. A changed value is a
// new search: the page resets to 1 before the request goes out.
func (e *Engine) SetMobileQuery(ctx context.Context, mobile string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter.MobileQuery == mobile {
		return
	}
	e.filter.MobileQuery = mobile
	e.filter.Page = 1
	e.fetchLocked(ctx)
}

// SetDate updates the date filter (ISO yyyy-mm-dd, empty to clear) and
// resets to page 1.
func (e *Engine) SetDate(ctx context.Context, dateISO string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter.DateISO == dateISO {
		return
	}
	e.filter.DateISO = dateISO
	e.filter.Page = 1
	e.fetchLocked(ctx)
}

// SetPage navigates to the given page without touching the search filters.
func (e *Engine) SetPage(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter.Page == page {
		return
	}
	e.filter.Page = page
	e.fetchLocked(ctx)
}

// Refresh re-issues the current filter, e.g. at mount or after a cancel.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetchLocked(ctx)
}

// Prime issues the initial fetch if nothing has been requested yet.
func (e *Engine) Prime(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch == 0 {
		e.fetchLocked(ctx)
	}
}

// WaitSettled blocks until no fetch is in flight (or ctx is done) and
// returns the latest applied snapshot.
func (e *Engine) WaitSettled(ctx context.Context) Snapshot {
	for {
		e.mu.Lock()
		if !e.snapshot.Loading || e.settled == nil {
			snapshot := e.snapshot
			e.mu.Unlock()
			return snapshot
		}
		settled := e.settled
		e.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return e.Snapshot()
		}
	}
}

// ReplaceOrder swaps the summary with the given id in the visible result
// set, if present. Used by the lifecycle controller after an acknowledged
// cancellation; server truth is untouched.
func (e *Engine) ReplaceOrder(updated domain.OrderSummary) {
	e.mu.Lock()
	for i, o := range e.snapshot.Orders {
		if o.ID == updated.ID {
			orders := make([]domain.OrderSummary, len(e.snapshot.Orders))
			copy(orders, e.snapshot.Orders)
			orders[i] = updated
			e.snapshot.Orders = orders
			break
		}
	}
	snapshot := e.snapshot
	subs := e.subs
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// LookupOrder returns the visible summary for the given id, if any.
func (e *Engine) LookupOrder(orderID int64) (domain.OrderSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.snapshot.Orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return domain.OrderSummary{}, false
}

// fetchLocked issues exactly one request for the current filter. The epoch
// increments before the request resolves; whichever in-flight fetch does not
// carry the newest epoch is discarded on arrival.
func (e *Engine) fetchLocked(ctx context.Context) {
	e.epoch++
	captured := e.epoch
	filter := e.filter

	e.snapshot.Loading = true
	e.snapshot.Filter = filter
	if e.settled == nil {
		e.settled = make(chan struct{})
	}

	go func() {
		result, err := e.lister.ListOrders(ctx, filter.Page, filter.PageSize, filter.MobileQuery, filter.DateISO)
		e.apply(ctx, captured, filter, result, err)
	}()
}

func (e *Engine) apply(ctx context.Context, captured uint64, filter Filter, result backend.ListOrdersResult, err error) {
	e.mu.Lock()

	if captured != e.epoch {
		// A newer filter has been issued since; this response is stale.
		e.mu.Unlock()
		return
	}

	if err != nil {
		e.logger.Error("failed to list orders", "error", err, "page", filter.Page, "mobile", filter.MobileQuery, "date", filter.DateISO)
		e.snapshot = Snapshot{
			Orders:     []domain.OrderSummary{},
			TotalCount: 0,
			Filter:     filter,
			Loading:    false,
			Err:        err,
		}
	} else {
		totalPages := (result.Total + filter.PageSize - 1) / filter.PageSize
		if totalPages < 1 {
			totalPages = 1
		}
		if filter.Page > totalPages {
			// The result set shrank under us; restart from page 1.
			e.filter.Page = 1
			e.fetchLocked(ctx)
			e.mu.Unlock()
			return
		}

		orders := result.Orders
		if orders == nil {
			orders = []domain.OrderSummary{}
		}
		e.snapshot = Snapshot{
			Orders:     orders,
			TotalCount: result.Total,
			Filter:     filter,
			Loading:    false,
		}
	}

	if e.settled != nil {
		close(e.settled)
		e.settled = nil
	}

	snapshot := e.snapshot
	subs := e.subs
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}
