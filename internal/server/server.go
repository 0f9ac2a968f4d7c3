package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"storefront/internal/repo"
	"storefront/internal/service"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Orders        service.OrderService
	Checkout      service.CheckoutService
	Reconciler    service.CallbackReconciler
	Notifier      service.NotificationService
	Subscriptions repo.SubscriptionRepo
	// Health reports backing store status; nil reports "up".
	Health      func(ctx context.Context) map[string]string
	CORSOrigins []string
	Log         *slog.Logger
}

type Server struct {
	Deps
	router *gin.Engine
}

func New(deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", agentHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s := &Server{Deps: deps, router: router}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/orders", s.handleCreateOrder)
		api.GET("/orders/:id", s.handleGetOrder)
		api.GET("/orders/:id/payment", s.handlePaymentStatus)
		api.PATCH("/orders/:id/status", s.handleUpdateStatus)
		api.POST("/orders/:id/cancel", s.handleCancel)
		api.POST("/orders/:id/checkout", s.handleCheckout)

		api.POST("/payments/callback", s.handlePaymentCallback)

		api.POST("/push/subscribe", s.handleSubscribe)
		api.DELETE("/push/subscribe", s.handleUnsubscribe)

		api.POST("/chat/notify", s.handleNotify)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
