package portal

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/welfarecanteen/portal/internal/backend"
	"github.com/welfarecanteen/portal/internal/domain"
	"github.com/welfarecanteen/portal/internal/lifecycle"
	"github.com/welfarecanteen/portal/internal/query"
)

// SessionContext is the read-only identity a session is built around. The
// portal trusts the upstream auth tier for it (auth itself is out of scope).
type SessionContext struct {
	UserID int64
	Role   string
}

// Session holds the per-user dashboard state: the query engine behind the
// admin order browser and the lifecycle controller behind the cancel flow.
type Session struct {
	ID      string
	Context SessionContext
	Engine  *query.Engine
	Cancels *lifecycle.Controller

	store *sessionStore
}

// RememberOrders merges summaries fetched outside the engine (the customer
// order history) into the session's last-known snapshot, so the cancel
// precondition check sees them.
func (s *Session) RememberOrders(orders []domain.OrderSummary) {
	s.store.remember(orders)
}

// sessionStore is the controller's view of the last known order snapshots:
// the engine's visible page plus anything remembered from other fetches.
type sessionStore struct {
	engine *query.Engine

	mu    sync.Mutex
	extra map[int64]domain.OrderSummary
}

func (st *sessionStore) remember(orders []domain.OrderSummary) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, o := range orders {
		st.extra[o.ID] = o
	}
}

func (st *sessionStore) LookupOrder(orderID int64) (domain.OrderSummary, bool) {
	if summary, ok := st.engine.LookupOrder(orderID); ok {
		return summary, true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	summary, ok := st.extra[orderID]
	return summary, ok
}

func (st *sessionStore) ReplaceOrder(updated domain.OrderSummary) {
	st.mu.Lock()
	if _, ok := st.extra[updated.ID]; ok {
		st.extra[updated.ID] = updated
	}
	st.mu.Unlock()

	st.engine.ReplaceOrder(updated)
}

type SessionManager struct {
	api       *backend.Client
	publisher lifecycle.EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(api *backend.Client, publisher lifecycle.EventPublisher, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		api:       api,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Get returns the session for the given id, creating it (with a fresh uuid
// when id is empty) on first use.
func (m *SessionManager) Get(id string, sctx SessionContext) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if session, ok := m.sessions[id]; ok {
			return session
		}
	} else {
		id = uuid.New().String()
	}

	engine := query.NewEngine(m.api, query.DefaultFilter(m.now()), m.logger)
	store := &sessionStore{
		engine: engine,
		extra:  make(map[int64]domain.OrderSummary),
	}
	actor := strconv.FormatInt(sctx.UserID, 10)
	session := &Session{
		ID:      id,
		Context: sctx,
		Engine:  engine,
		Cancels: lifecycle.NewController(m.api, store, m.publisher, actor, m.logger),
		store:   store,
	}
	m.sessions[id] = session
	return session
}
