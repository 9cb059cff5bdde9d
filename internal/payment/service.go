package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/models"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
)

const yookassaPaymentsURL = "https://api.yookassa.ru/v3/payments"
const demoCheckoutURL = "https://yoomoney.ru/checkout/payments/v2/contract?orderId=DEMO"

// Service creates topup payments and credits the ledger on confirmation.
// Confirmation is user-asserted (the "I paid" button) or comes in through
// the YooKassa webhook; either way a payment credits the balance exactly
// once. The user-asserted path is a known trust gap kept for compatibility:
// production deployments should rely on the webhook.
type Service struct {
	cfg    config.Config
	ledger *ledger.Ledger
	log    *slog.Logger
	client *http.Client

	mu      sync.Mutex
	pending map[string]*models.PendingPayment
}

func NewService(cfg config.Config, ldgr *ledger.Ledger, log *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		ledger: ldgr,
		log:    log,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		pending: make(map[string]*models.PendingPayment),
	}
}

func (s *Service) demoMode() bool {
	return s.cfg.YooKassaShopID == "" || s.cfg.YooKassaSecretKey == ""
}

// Create registers a pending payment and returns it with a confirmation URL
// the user must visit. Without shop credentials a demo payment is issued.
func (s *Service) Create(ctx context.Context, userID int64, amount int) (*models.PendingPayment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("non-positive topup amount: %d", amount)
	}

	record := &models.PendingPayment{
		UserID:    userID,
		Amount:    amount,
		Status:    models.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}

	if s.demoMode() {
		record.ID = fmt.Sprintf("demo_%s", uuid.NewString())
		record.ConfirmationURL = demoCheckoutURL
		record.Demo = true
	} else {
		created, err := s.createYooKassaPayment(ctx, userID, amount)
		if err != nil {
			return nil, err
		}
		record.ID = created.ID
		record.ConfirmationURL = created.Confirmation.URL
	}

	s.mu.Lock()
	s.pending[record.ID] = record
	s.mu.Unlock()

	s.log.Info("payment created", "payment_id", record.ID, "user_id", userID, "amount", amount, "demo", record.Demo)
	return record, nil
}

// Confirm marks the payment succeeded and credits the ledger. Safe to call
// repeatedly: only the first call credits.
func (s *Service) Confirm(paymentID string) (*models.PendingPayment, error) {
	s.mu.Lock()
	record, ok := s.pending[paymentID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPaymentNotFound
	}
	if record.Status == models.PaymentSucceeded {
		copied := *record
		s.mu.Unlock()
		return &copied, ErrAlreadyConfirmed
	}
	record.Status = models.PaymentSucceeded
	copied := *record
	s.mu.Unlock()

	if err := s.ledger.Credit(record.UserID, record.Amount); err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}
	s.log.Info("payment confirmed", "payment_id", paymentID, "user_id", record.UserID, "amount", record.Amount)
	return &copied, nil
}

// Get returns a copy of the pending payment.
func (s *Service) Get(paymentID string) (*models.PendingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.pending[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *record
	return &copied, nil
}

type yooPaymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		Type string `json:"type"`
		URL  string `json:"confirmation_url"`
	} `json:"confirmation"`
}

func (s *Service) createYooKassaPayment(ctx context.Context, userID int64, amount int) (*yooPaymentResponse, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%d.00", amount),
			"currency": "RUB",
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": s.cfg.YooKassaReturnURL,
		},
		"capture":     true,
		"description": fmt.Sprintf("Пополнение баланса на %d руб", amount),
		"metadata": map[string]string{
			"user_id": fmt.Sprintf("%d", userID),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yookassaPaymentsURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build yookassa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(s.cfg.YooKassaShopID, s.cfg.YooKassaSecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read yookassa response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yookassa error: status=%d", resp.StatusCode)
	}

	var parsed yooPaymentResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode yookassa response: %w", err)
	}
	if parsed.ID == "" || parsed.Confirmation.URL == "" {
		return nil, fmt.Errorf("invalid yookassa response (missing id or confirmation url)")
	}
	return &parsed, nil
}

// HandleWebhook processes a YooKassa server-to-server notification and
// credits the user on a succeeded payment.
func (s *Service) HandleWebhook(payload []byte) error {
	var evt struct {
		Event  string `json:"event"`
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("parse webhook: %w", err)
	}
	if evt.Object.ID == "" {
		return fmt.Errorf("webhook missing payment id")
	}
	if evt.Object.Status != "succeeded" {
		s.log.Info("payment webhook ignored", "payment_id", evt.Object.ID, "status", evt.Object.Status)
		return nil
	}

	if _, err := s.Confirm(evt.Object.ID); err != nil {
		if errors.Is(err, ErrAlreadyConfirmed) {
			return nil
		}
		return fmt.Errorf("confirm payment: %w", err)
	}
	return nil
}
