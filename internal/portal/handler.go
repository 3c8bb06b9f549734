package portal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/welfarecanteen/portal/internal/backend"
	"github.com/welfarecanteen/portal/internal/domain"
	"github.com/welfarecanteen/portal/internal/support"
	"github.com/welfarecanteen/portal/internal/telemetry"
)

const (
	sessionHeader = "X-Session-ID"
	userHeader    = "X-User-ID"
	roleHeader    = "X-User-Role"

	usersDefaultPageSize = 20
)

type Handler struct {
	api           *backend.Client
	sessions      *SessionManager
	tickets       *support.TicketRepository
	publicBaseURL string
	logger        *slog.Logger
}

func NewHandler(api *backend.Client, sessions *SessionManager, tickets *support.TicketRepository, publicBaseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		api:           api,
		sessions:      sessions,
		tickets:       tickets,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(h.HandleListOrders))
	mux.HandleFunc("GET /admin/orders/{id}", telemetry.WithHTTPRoute(h.HandleGetOrder))
	mux.HandleFunc("GET /admin/dashboard", telemetry.WithHTTPRoute(h.HandleDashboard))
	mux.HandleFunc("POST /admin/items", telemetry.WithHTTPRoute(h.HandleCreateItem))
	mux.HandleFunc("PUT /admin/items/{id}", telemetry.WithHTTPRoute(h.HandleUpdateItem))
	mux.HandleFunc("POST /admin/canteens", telemetry.WithHTTPRoute(h.HandleCreateCanteen))
	mux.HandleFunc("PUT /admin/canteens/{id}", telemetry.WithHTTPRoute(h.HandleUpdateCanteen))
	mux.HandleFunc("GET /admin/users", telemetry.WithHTTPRoute(h.HandleListUsers))
	mux.HandleFunc("GET /my/orders", telemetry.WithHTTPRoute(h.HandleMyOrders))
	mux.HandleFunc("GET /my/orders/{id}/qr", telemetry.WithHTTPRoute(h.HandleOrderQR))
	mux.HandleFunc("POST /my/orders/{id}/cancel", telemetry.WithHTTPRoute(h.HandleCancelOrder))
	mux.HandleFunc("POST /support/tickets", telemetry.WithHTTPRoute(h.HandleCreateTicket))
	mux.HandleFunc("GET /support/tickets", telemetry.WithHTTPRoute(h.HandleListTickets))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *Session {
	userID, _ := strconv.ParseInt(r.Header.Get(userHeader), 10, 64)
	sctx := SessionContext{
		UserID: userID,
		Role:   r.Header.Get(roleHeader),
	}
	session := h.sessions.Get(r.Header.Get(sessionHeader), sctx)
	w.Header().Set(sessionHeader, session.ID)
	return session
}

type orderListResponse struct {
	Orders           []domain.OrderSummary `json:"orders"`
	Total            int                   `json:"total"`
	Page             int                   `json:"page"`
	PageSize         int                   `json:"page_size"`
	Loading          bool                  `json:"loading"`
	Error            string                `json:"error,omitempty"`
	PendingCancelIDs []int64               `json:"pending_cancel_ids"`
}

// HandleListOrders applies filter deltas from the query string to the
// session's engine and returns the latest applied result set. Absent
// parameters leave the corresponding filter untouched.
func (h *Handler) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)
	ctx := r.Context()
	params := r.URL.Query()

	session.Engine.Prime(ctx)
	if params.Has("mobile") {
		session.Engine.SetMobileQuery(ctx, params.Get("mobile"))
	}
	if params.Has("date") {
		session.Engine.SetDate(ctx, params.Get("date"))
	}
	if params.Has("page") {
		page, err := strconv.Atoi(params.Get("page"))
		if err != nil || page < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		session.Engine.SetPage(ctx, page)
	}

	snapshot := session.Engine.WaitSettled(ctx)

	resp := orderListResponse{
		Orders:           snapshot.Orders,
		Total:            snapshot.TotalCount,
		Page:             snapshot.Filter.Page,
		PageSize:         snapshot.Filter.PageSize,
		Loading:          snapshot.Loading,
		PendingCancelIDs: session.Cancels.PendingCancelIDs(),
	}
	if snapshot.Err != nil {
		resp.Error = "failed to load orders, please try again"
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type orderDetailResponse struct {
	domain.OrderDetail
	OrderDateText string `json:"order_date_text"`
	CreatedAtText string `json:"created_at_text"`
}

func (h *Handler) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	detail, err := h.api.GetOrderDetail(r.Context(), orderID)
	if err != nil {
		var nf *backend.NotFoundError
		if errors.As(err, &nf) {
			h.writeError(w, http.StatusNotFound, "failed to load order details")
			return
		}
		h.logger.Error("failed to get order detail", "error", err, "order_id", orderID)
		h.writeBackendError(w, err)
		return
	}

	h.logger.Info("order detail retrieved", "order_id", orderID)
	h.writeJSON(w, http.StatusOK, orderDetailResponse{
		OrderDetail:   *detail,
		OrderDateText: domain.FormatOrderDate(detail.OrderDate),
		CreatedAtText: domain.FormatOrderDateTime(detail.CreatedAt),
	})
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	date := time.Now().Format("02-01-2006")
	if params.Has("date") {
		parsed, err := time.Parse("2006-01-02", params.Get("date"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid date, expected yyyy-mm-dd")
			return
		}
		date = parsed.Format("02-01-2006")
	}

	var canteenID int64
	if params.Has("canteen_id") {
		var err error
		canteenID, err = strconv.ParseInt(params.Get("canteen_id"), 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid canteen id")
			return
		}
	}

	totals, err := h.api.DashboardTotals(r.Context(), date, canteenID)
	if err != nil {
		h.logger.Error("failed to get dashboard totals", "error", err, "date", date, "canteen_id", canteenID)
		h.writeBackendError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, totals)
}

func (h *Handler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if message := validateItem(item, true); message != "" {
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	if err := h.api.CreateItem(r.Context(), item); err != nil {
		h.logger.Error("failed to create item", "error", err, "name", item.Name)
		h.writeBackendError(w, err)
		return
	}

	h.logger.Info("item created", "name", item.Name)
	h.writeJSON(w, http.StatusCreated, map[string]string{"message": "item created successfully"})
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var item domain.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	item.ID = itemID

	if message := validateItem(item, false); message != "" {
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	if err := h.api.UpdateItem(r.Context(), item); err != nil {
		h.logger.Error("failed to update item", "error", err, "item_id", itemID)
		h.writeBackendError(w, err)
		return
	}

	h.logger.Info("item updated", "item_id", itemID)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "item updated successfully"})
}

func (h *Handler) HandleCreateCanteen(w http.ResponseWriter, r *http.Request) {
	var canteen domain.Canteen
	if err := json.NewDecoder(r.Body).Decode(&canteen); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if message := validateCanteen(canteen, true); message != "" {
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	if err := h.api.CreateCanteen(r.Context(), canteen); err != nil {
		h.logger.Error("failed to create canteen", "error", err, "name", canteen.Name)
		h.writeBackendError(w, err)
		return
	}

	h.logger.Info("canteen created", "name", canteen.Name, "code", canteen.Code)
	h.writeJSON(w, http.StatusCreated, map[string]string{"message": "canteen created successfully"})
}

func (h *Handler) HandleUpdateCanteen(w http.ResponseWriter, r *http.Request) {
	canteenID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid canteen id")
		return
	}

	var canteen domain.Canteen
	if err := json.NewDecoder(r.Body).Decode(&canteen); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	canteen.ID = canteenID

	if message := validateCanteen(canteen, false); message != "" {
		h.writeError(w, http.StatusBadRequest, message)
		return
	}

	if err := h.api.UpdateCanteen(r.Context(), canteen); err != nil {
		h.logger.Error("failed to update canteen", "error", err, "canteen_id", canteenID)
		h.writeBackendError(w, err)
		return
	}

	h.logger.Info("canteen updated", "canteen_id", canteenID)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "canteen updated successfully"})
}

type userListResponse struct {
	Users    []domain.User `json:"users"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// HandleListUsers fetches the whole directory from the canteen API and
// paginates it here; the upstream endpoint has no paging of its own.
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.api.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		h.writeBackendError(w, err)
		return
	}

	params := r.URL.Query()
	page := 1
	if params.Has("page") {
		if page, err = strconv.Atoi(params.Get("page")); err != nil || page < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
	}
	pageSize := usersDefaultPageSize
	if params.Has("page_size") {
		if pageSize, err = strconv.Atoi(params.Get("page_size")); err != nil || pageSize < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid page size")
			return
		}
	}

	start := (page - 1) * pageSize
	if start > len(users) {
		start = len(users)
	}
	end := start + pageSize
	if end > len(users) {
		end = len(users)
	}

	h.logger.Info("users listed", "total", len(users), "page", page)
	h.writeJSON(w, http.StatusOK, userListResponse{
		Users:    users[start:end],
		Total:    len(users),
		Page:     page,
		PageSize: pageSize,
	})
}

type myOrderResponse struct {
	domain.OrderDetail
	OrderDateText string `json:"order_date_text"`
	CreatedAtText string `json:"created_at_text"`
	QRValue       string `json:"qr_value,omitempty"`
	CanCancel     bool   `json:"can_cancel"`
}

// HandleMyOrders returns the caller's order history, newest first. QR
// receipts are only offered for orders still redeemable at the counter.
func (h *Handler) HandleMyOrders(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	details, err := h.api.ListMyOrders(r.Context(), session.Context.UserID)
	if err != nil {
		h.logger.Error("failed to list my orders", "error", err, "user_id", session.Context.UserID)
		h.writeBackendError(w, err)
		return
	}

	sort.SliceStable(details, func(i, j int) bool {
		return details[i].OrderDate > details[j].OrderDate
	})

	summaries := make([]domain.OrderSummary, 0, len(details))
	resp := make([]myOrderResponse, 0, len(details))
	for _, detail := range details {
		summaries = append(summaries, detail.OrderSummary)
		entry := myOrderResponse{
			OrderDetail:   detail,
			OrderDateText: domain.FormatOrderDate(detail.OrderDate),
			CreatedAtText: domain.FormatOrderDateTime(detail.CreatedAt),
			CanCancel:     detail.Status.CanCancel(),
		}
		if !detail.Status.IsTerminal() {
			entry.QRValue = receiptValue(h.publicBaseURL, detail.ID)
		}
		resp = append(resp, entry)
	}
	session.RememberOrders(summaries)

	h.logger.Info("my orders listed", "user_id", session.Context.UserID, "count", len(resp))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders":             resp,
		"pending_cancel_ids": session.Cancels.PendingCancelIDs(),
	})
}

func (h *Handler) HandleOrderQR(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	png, err := renderQR(receiptValue(h.publicBaseURL, orderID))
	if err != nil {
		h.logger.Error("failed to render qr", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "failed to render qr code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.logger.Error("failed to write qr response", "error", err)
	}
}

type cancelRequest struct {
	Confirm bool `json:"confirm"`
}

type cancelResponse struct {
	Outcome          string  `json:"outcome"`
	Message          string  `json:"message"`
	PendingCancelIDs []int64 `json:"pending_cancel_ids"`
}

// HandleCancelOrder is the two-step cancel flow: confirm=false only opens
// the confirmation gate; nothing reaches the network until a confirm=true
// call.
func (h *Handler) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	session := h.session(w, r)

	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pending, result := session.Cancels.RequestCancel(orderID)
	if pending != nil {
		if req.Confirm {
			result = pending.Confirm(r.Context())
		} else {
			pending.Dismiss()
		}
	}

	h.writeJSON(w, cancelStatus(result), cancelResponse{
		Outcome:          string(result.Outcome),
		Message:          result.Message,
		PendingCancelIDs: session.Cancels.PendingCancelIDs(),
	})
}

type ticketRequest struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *Handler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Name == "":
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	case !validMobile(req.Mobile):
		h.writeError(w, http.StatusBadRequest, "a valid 10-digit mobile number is required")
		return
	case req.Message == "":
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ticket := &domain.SupportTicket{
		Name:    req.Name,
		Mobile:  req.Mobile,
		Subject: req.Subject,
		Message: req.Message,
	}
	if err := h.tickets.Create(r.Context(), ticket); err != nil {
		h.logger.Error("failed to create support ticket", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("support ticket created", "ticket_id", ticket.ID)
	h.writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tickets.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list support tickets", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("support tickets listed", "count", len(tickets))
	h.writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) writeBackendError(w http.ResponseWriter, err error) {
	var validation *backend.ValidationError
	var rule *backend.BusinessRuleError
	var notFound *backend.NotFoundError

	switch {
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &rule):
		h.writeError(w, http.StatusConflict, rule.Message)
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, notFound.Error())
	default:
		h.writeError(w, http.StatusBadGateway, "service unavailable")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
