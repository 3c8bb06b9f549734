package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/welfarecanteen/portal/internal/domain"
)

// Client is the typed client for the remote canteen API. The API owns all
// order, item, canteen and user truth; the portal never persists any of it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type ListOrdersResult struct {
	Orders []domain.OrderSummary
	Total  int
}

type CancelResult struct {
	Success bool
	Message string
}

// wire shapes: the canteen API speaks camelCase and nests user/canteen
// projections; everything is flattened into domain types at this boundary.

type wireUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile"`
}

type wireCanteen struct {
	CanteenName string `json:"canteenName"`
}

type wireOrderItem struct {
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	MenuItemItem *struct {
		Name string `json:"name"`
	} `json:"menuItemItem"`
}

type wirePayment struct {
	ID            int64           `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
}

type wireOrder struct {
	ID           int64           `json:"id"`
	OrderNo      string          `json:"orderNo"`
	Status       string          `json:"status"`
	OrderDate    int64           `json:"orderDate"`
	CreatedAt    int64           `json:"createdAt"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	OrderUser    *wireUser       `json:"orderUser"`
	OrderCanteen *wireCanteen    `json:"orderCanteen"`
	OrderItems   []wireOrderItem `json:"orderItems"`
	Payment      []wirePayment   `json:"payment"`
}

func (w wireOrder) summary() domain.OrderSummary {
	s := domain.OrderSummary{
		ID:          w.ID,
		OrderNo:     w.OrderNo,
		Status:      domain.OrderStatus(w.Status),
		OrderDate:   w.OrderDate,
		TotalAmount: w.TotalAmount,
	}
	if w.OrderUser != nil {
		s.CustomerMobile = w.OrderUser.Mobile
	}
	if w.OrderCanteen != nil {
		s.CanteenName = w.OrderCanteen.CanteenName
	}
	return s
}

func (w wireOrder) detail() domain.OrderDetail {
	d := domain.OrderDetail{
		OrderSummary: w.summary(),
		CreatedAt:    w.CreatedAt,
	}
	for _, it := range w.OrderItems {
		item := domain.OrderLineItem{
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		}
		if it.MenuItemItem != nil {
			item.ItemName = it.MenuItemItem.Name
		}
		d.Items = append(d.Items, item)
	}
	for _, p := range w.Payment {
		d.Payments = append(d.Payments, domain.PaymentRecord{
			ID:     p.ID,
			Amount: p.Amount,
			Status: p.Status,
			Method: p.PaymentMethod,
		})
	}
	return d
}

// ListOrders fetches one page of the admin order browser. Empty mobile and
// date are omitted from the request entirely.
func (c *Client) ListOrders(ctx context.Context, page, pageSize int, mobile, date string) (ListOrdersResult, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageSize))
	if mobile != "" {
		query.Set("mobile", mobile)
	}
	if date != "" {
		query.Set("date", date)
	}

	var resp struct {
		Data struct {
			Orders []wireOrder `json:"orders"`
			Total  int         `json:"total"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/order/getAllOrders", query, nil, &resp); err != nil {
		return ListOrdersResult{}, err
	}

	result := ListOrdersResult{
		Orders: make([]domain.OrderSummary, 0, len(resp.Data.Orders)),
		Total:  resp.Data.Total,
	}
	for _, o := range resp.Data.Orders {
		result.Orders = append(result.Orders, o.summary())
	}
	return result, nil
}

func (c *Client) GetOrderDetail(ctx context.Context, orderID int64) (*domain.OrderDetail, error) {
	var resp struct {
		Data wireOrder `json:"data"`
	}
	path := fmt.Sprintf("/order/getOrderById/%d", orderID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, &NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, err
	}
	detail := resp.Data.detail()
	return &detail, nil
}

// CancelOrder asks the canteen API to cancel an order. A 2xx response is
// decoded into the success flag; a 4xx with a reason becomes a
// BusinessRuleError so the server's message reaches the user verbatim.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) (CancelResult, error) {
	body := map[string]int64{"orderId": orderID}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/order/cancelOrder", nil, body, &resp); err != nil {
		return CancelResult{}, err
	}
	return CancelResult{Success: resp.Success, Message: resp.Message}, nil
}

// ListMyOrders returns the caller's full order history, newest first, with
// line items and payments included.
func (c *Client) ListMyOrders(ctx context.Context, userID int64) ([]domain.OrderDetail, error) {
	query := url.Values{}
	query.Set("userId", strconv.FormatInt(userID, 10))

	var resp struct {
		Data []wireOrder `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/order/myOrders", query, nil, &resp); err != nil {
		return nil, err
	}

	details := make([]domain.OrderDetail, 0, len(resp.Data))
	for _, o := range resp.Data {
		details = append(details, o.detail())
	}
	return details, nil
}

type wireItemPayload struct {
	ID           int64           `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Description  string          `json:"description"`
	Quantity     int             `json:"quantity"`
	QuantityUnit string          `json:"quantityUnit"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	StartDate    string          `json:"startDate,omitempty"`
	EndDate      string          `json:"endDate,omitempty"`
}

func itemPayload(item domain.Item) wireItemPayload {
	return wireItemPayload{
		ID:           item.ID,
		Name:         item.Name,
		Description:  item.Description,
		Quantity:     item.Quantity,
		QuantityUnit: item.QuantityUnit,
		Price:        item.Price,
		Image:        item.ImageURL,
		StartDate:    item.StartDate,
		EndDate:      item.EndDate,
	}
}

func (c *Client) CreateItem(ctx context.Context, item domain.Item) error {
	return c.do(ctx, http.MethodPost, "/item/createItem", nil, itemPayload(item), nil)
}

// UpdateItem never sends the name; item names are immutable upstream.
func (c *Client) UpdateItem(ctx context.Context, item domain.Item) error {
	payload := itemPayload(item)
	payload.Name = ""
	return c.do(ctx, http.MethodPut, "/item/updateItem", nil, payload, nil)
}

type wireCanteenPayload struct {
	CanteenID    int64  `json:"canteenId,omitempty"`
	CanteenName  string `json:"canteenName,omitempty"`
	CanteenCode  string `json:"canteenCode,omitempty"`
	CanteenImage string `json:"canteenImage"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
}

func canteenPayload(canteen domain.Canteen) wireCanteenPayload {
	return wireCanteenPayload{
		CanteenID:    canteen.ID,
		CanteenName:  canteen.Name,
		CanteenCode:  canteen.Code,
		CanteenImage: canteen.ImageURL,
		FirstName:    canteen.Contact.FirstName,
		LastName:     canteen.Contact.LastName,
		Email:        canteen.Contact.Email,
		Mobile:       canteen.Contact.Mobile,
	}
}

func (c *Client) CreateCanteen(ctx context.Context, canteen domain.Canteen) error {
	return c.do(ctx, http.MethodPost, "/canteen/createCanteen", nil, canteenPayload(canteen), nil)
}

// UpdateCanteen never sends name or code; both are fixed at creation.
func (c *Client) UpdateCanteen(ctx context.Context, canteen domain.Canteen) error {
	payload := canteenPayload(canteen)
	payload.CanteenName = ""
	payload.CanteenCode = ""
	path := fmt.Sprintf("/canteen/updateCanteen/%d", canteen.ID)
	return c.do(ctx, http.MethodPut, path, nil, payload, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var resp struct {
		Data []wireUser `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/getAllUsers", nil, nil, &resp); err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(resp.Data))
	for _, u := range resp.Data {
		users = append(users, domain.User{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			Mobile:    u.Mobile,
		})
	}
	return users, nil
}

// DashboardTotals fetches the per-day order roll-up; canteenID 0 means all
// canteens. Date is dd-mm-yyyy, matching the upstream dashboard endpoint.
func (c *Client) DashboardTotals(ctx context.Context, date string, canteenID int64) (*domain.DashboardTotals, error) {
	query := url.Values{}
	query.Set("orderDate", date)
	if canteenID != 0 {
		query.Set("canteenId", strconv.FormatInt(canteenID, 10))
	}

	var resp struct {
		Data struct {
			TotalAmount decimal.Decimal `json:"totalAmount"`
			TotalOrders int             `json:"totalOrders"`
			Placed      struct {
				Count int `json:"count"`
			} `json:"placed"`
			Completed struct {
				Count int `json:"count"`
			} `json:"completed"`
			Cancelled struct {
				Count int `json:"count"`
			} `json:"cancelled"`
			ItemWiseCounts []struct {
				ItemID                int64  `json:"itemId"`
				ItemName              string `json:"itemName"`
				TotalQuantity         string `json:"totalQuantity"`
				MenuConfigurationName string `json:"menuConfigurationName"`
			} `json:"itemWiseCounts"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/order/getTotalOrders", query, nil, &resp); err != nil {
		return nil, err
	}

	totals := &domain.DashboardTotals{
		TotalAmount: resp.Data.TotalAmount,
		TotalOrders: resp.Data.TotalOrders,
		Placed:      resp.Data.Placed.Count,
		Completed:   resp.Data.Completed.Count,
		Cancelled:   resp.Data.Cancelled.Count,
	}
	for _, count := range resp.Data.ItemWiseCounts {
		totals.ItemWiseCounts = append(totals.ItemWiseCounts, domain.ItemWiseCount{
			ItemID:        count.ItemID,
			ItemName:      count.ItemName,
			TotalQuantity: count.TotalQuantity,
			MenuName:      count.MenuConfigurationName,
		})
	}
	return totals, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus(resp, method, path); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	message := apiErr.Message
	if message == "" {
		message = apiErr.Error
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: "resource"}
	case resp.StatusCode == http.StatusConflict:
		if message == "" {
			message = "request rejected"
		}
		return &BusinessRuleError{Message: message}
	case resp.StatusCode < 500:
		if message == "" {
			message = fmt.Sprintf("invalid request (status %d)", resp.StatusCode)
		}
		return &ValidationError{Message: message}
	default:
		return &TransportError{
			Op:  method + " " + path,
			Err: fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	}
}
