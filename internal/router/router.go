package router

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tableside/floor/internal/config"
	"github.com/tableside/floor/internal/enum"
	"github.com/tableside/floor/internal/handler"
	mw "github.com/tableside/floor/internal/middleware"
	"github.com/tableside/floor/internal/mirror"
	"github.com/tableside/floor/internal/service"
	"github.com/tableside/floor/internal/ws"
)

// Deps are the long-lived components the routes are served from.
type Deps struct {
	Store     *mirror.Store
	Refresher *mirror.Refresher
	Hub       *ws.Hub
	Tables    *service.TableCoordinator
	Bookings  *service.BookingWorkflow
	Checkout  *service.CheckoutOrchestrator
}

// New creates a Chi router with all application routes wired up.
// Every floor route requires a staff or admin token.
func New(cfg *config.Config, deps Deps) (chi.Router, error) {
	limit, err := mw.RateLimit(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket routes (handle auth internally via query param)
	r.Get("/ws/floor", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(deps.Hub, cfg.JWTSecret, ws.RoomFloor, ws.StaffOnly, w, r)
	})
	r.Get("/ws/orders/{id}/payment", func(w http.ResponseWriter, r *http.Request) {
		orderID, ok := orderParam(w, r)
		if !ok {
			return
		}
		allow := ws.OrderOwnerOrStaff(orderID, orderCustomer(deps.Store))
		ws.ServeWS(deps.Hub, cfg.JWTSecret, ws.OrderRoom(orderID), allow, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.RoleAdmin, enum.RoleStaff))

		r.Route("/floor", handler.NewFloorHandler(deps.Store, deps.Refresher).RegisterRoutes)
		r.Route("/tables", handler.NewTableHandler(deps.Tables).RegisterRoutes)
		r.Route("/bookings", handler.NewBookingHandler(deps.Bookings).RegisterRoutes)
		r.Route("/orders", handler.NewCheckoutHandler(deps.Checkout).RegisterRoutes)
	})

	log.Println("Router initialized with all handlers")
	return r, nil
}

func orderParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid order ID"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// orderCustomer looks up an order's customer in the mirror.
func orderCustomer(store *mirror.Store) func(int64) (int64, bool) {
	return func(orderID int64) (int64, bool) {
		o, ok := store.Order(orderID)
		if !ok || o.CustomerID == nil {
			return 0, false
		}
		return *o.CustomerID, true
	}
}
