package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"spotx/internal/auth"
	"spotx/internal/db"
	"spotx/internal/exchange"
	"spotx/internal/models"
	"spotx/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Orders      *exchange.Service
	AuthService *auth.AuthService
	Hub         *ws.Hub
}

// NewHandler creates a new handler
func NewHandler(db *db.DB, orders *exchange.Service, authService *auth.AuthService, hub *ws.Hub) *Handler {
	return &Handler{DB: db, Orders: orders, AuthService: authService, Hub: hub}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps order service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *exchange.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrInsufficientAsset):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, exchange.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Remove "Bearer " prefix if present
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		// Add user_id to context
		ctx := context.WithValue(r.Context(), "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(r *http.Request) (int64, bool) {
	userID, ok := r.Context().Value("user_id").(int64)
	return userID, ok
}

// Profile returns the caller's identity, USD balance and asset holdings.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.DB.GetUserByID(r.Context(), userID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve profile")
		return
	}

	assets, err := h.DB.GetUserAssets(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve assets")
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"balance":  user.Balance,
		"assets":   assets,
	})
}

// PlaceOrder handles order placement. The reservation is applied before
// the response; matching runs asynchronously.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Symbol string      `json:"symbol"`
		Side   string      `json:"side"`
		Price  json.Number `json:"price"`
		Amount json.Number `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.Orders.Place(r.Context(), userID, exchange.PlaceRequest{
		Symbol: req.Symbol,
		Side:   req.Side,
		Price:  req.Price.String(),
		Amount: req.Amount.String(),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"order": order})
}

// CancelOrder cancels an open order owned by the caller. Cancelling an
// order already in a terminal state returns it unchanged.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := h.Orders.Cancel(r.Context(), userID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"order": order})
}

// GetOrderBook returns one page of each side of a symbol's book: bids
// highest price first, asks lowest first, earlier placement winning
// within a price level.
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		symbol = "BTC"
	}

	perPage := queryInt(r, "per_page", 10)
	if perPage < 1 || perPage > 100 {
		perPage = 10
	}
	buyPage := queryInt(r, "buy_page", 1)
	sellPage := queryInt(r, "sell_page", 1)

	bids, bidTotal, err := h.DB.ListOpenOrders(r.Context(), symbol, models.SideBuy, buyPage, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve order book")
		return
	}
	asks, askTotal, err := h.DB.ListOpenOrders(r.Context(), symbol, models.SideSell, sellPage, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve order book")
		return
	}
	if bids == nil {
		bids = []models.Order{}
	}
	if asks == nil {
		asks = []models.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"buy": map[string]interface{}{
			"orders":   bids,
			"total":    bidTotal,
			"page":     buyPage,
			"per_page": perPage,
		},
		"sell": map[string]interface{}{
			"orders":   asks,
			"total":    askTotal,
			"page":     sellPage,
			"per_page": perPage,
		},
	})
}

// GetMyOrders retrieves the caller's orders for a symbol, newest first.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		symbol = "BTC"
	}

	orders, err := h.DB.ListUserOrders(r.Context(), userID, symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// GetUserTrades retrieves the caller's trade history
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	trades, err := h.DB.ListUserTrades(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

// ServeWS upgrades to a websocket and subscribes the caller to their
// private match events. The token is read from the Authorization header
// or a `token` query parameter, since browsers cannot set headers on
// websocket requests.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}

	userID, err := h.AuthService.GetUserFromToken(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	remove := h.Hub.Add(userID, conn)
	defer remove()
	defer conn.Close()

	// Drain control/application frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
