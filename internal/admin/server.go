package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/payment"
)

// Server is the operator-facing HTTP surface: account inspection, manual
// crediting, and the payment provider webhook.
type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	ledger   *ledger.Ledger
	payments *payment.Service
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, ldgr *ledger.Ledger, payments *payment.Service) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		ledger:   ldgr,
		payments: payments,
		router:   r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook/yookassa", s.handleYooKassaWebhook)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/users", s.handleListUsers)
		protected.Post("/users/{id}/credit", s.handleCreditUser)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type userView struct {
	UserID     int64          `json:"user_id"`
	Balance    int            `json:"balance"`
	TotalSpent int            `json:"total_spent"`
	Usage      map[string]int `json:"usage"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	accounts := s.ledger.Accounts()
	views := make([]userView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, userView{
			UserID:     account.UserID,
			Balance:    account.Balance,
			TotalSpent: account.TotalSpent,
			Usage:      account.Usage,
			CreatedAt:  account.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type creditRequest struct {
	Amount int `json:"amount"`
}

func (s *Server) handleCreditUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Credit(userID, req.Amount); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.log.Info("manual credit", "user_id", userID, "amount", req.Amount)
	account := s.ledger.GetOrInit(userID)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": account.Balance})
}

func (s *Server) handleYooKassaWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if err := s.payments.HandleWebhook(body); err != nil {
		s.log.Error("yookassa webhook", "err", err)
		http.Error(w, "webhook error", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
