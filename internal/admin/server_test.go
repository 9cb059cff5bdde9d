package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/payment"
	"github.com/evolark/photogenbot/pkg/logger"
)

func newTestServer() (*Server, *ledger.Ledger, *payment.Service) {
	ldgr := ledger.New(ledger.NewMemoryStore())
	payments := payment.NewService(config.Config{}, ldgr, logger.New())
	srv := NewServer(":0", "admin", "secret", logger.New(), ldgr, payments)
	return srv, ldgr, payments
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsOpen(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProtectedRoutesRequireBasicAuth(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUsers(t *testing.T) {
	srv, ldgr, _ := newTestServer()
	require.NoError(t, ldgr.Credit(10, 250))
	ldgr.RecordUsage(10, "text-to-image")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.SetBasicAuth("admin", "secret")
	rec := doRequest(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []userView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, int64(10), views[0].UserID)
	assert.Equal(t, 250, views[0].Balance)
	assert.Equal(t, 1, views[0].Usage["text-to-image"])
}

func TestCreditUser(t *testing.T) {
	srv, ldgr, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/users/77/credit", strings.NewReader(`{"amount":150}`))
	req.SetBasicAuth("admin", "secret")
	rec := doRequest(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 150, ldgr.GetOrInit(77).Balance)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(150), resp["balance"])
}

func TestCreditUserValidation(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/users/abc/credit", strings.NewReader(`{"amount":150}`))
	req.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusBadRequest, doRequest(srv, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/users/77/credit", strings.NewReader(`not json`))
	req.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusBadRequest, doRequest(srv, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/users/77/credit", strings.NewReader(`{"amount":-5}`))
	req.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusBadRequest, doRequest(srv, req).Code)
}

func TestYooKassaWebhookCreditsWithoutAuth(t *testing.T) {
	srv, ldgr, payments := newTestServer()

	record, err := payments.Create(context.Background(), 42, 300)
	require.NoError(t, err)

	body := fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"%s","status":"succeeded"}}`, record.ID)
	rec := doRequest(srv, httptest.NewRequest(http.MethodPost, "/webhook/yookassa", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 300, ldgr.GetOrInit(42).Balance)
}

func TestYooKassaWebhookRejectsBadPayload(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doRequest(srv, httptest.NewRequest(http.MethodPost, "/webhook/yookassa", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
