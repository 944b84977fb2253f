package transactions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/httpapi"
)

func newTestApp(t *testing.T) (*fiber.App, fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	app := fiber.New(fiber.Config{ErrorHandler: httpapi.Handler})
	app.Get("/transactions", h.List)
	app.Post("/transactions", h.Create)
	app.Get("/transactions/:transactionId", h.Get)
	app.Patch("/transactions/:transactionId", h.Amend)
	return app, f
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHandlerOverdraftScenario(t *testing.T) {
	app, f := newTestApp(t)
	w := f.wallet(t)

	status, created := doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"tx1","amount":"100"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "100.000000000000000000", created["amount"])
	assert.Equal(t, w.ID, created["wallet"])

	status, rejected := doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"tx2","amount":-150}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "100.000000000000000000", rejected["current_balance"])
	assert.Equal(t, "-150.000000000000000000", rejected["amount"])

	status, _ = doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"tx3","amount":"-50"}`)
	assert.Equal(t, http.StatusCreated, status)

	status, dup := doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"tx1","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, dup["error"], "duplicate txid")
}

func TestHandlerAmendAndGet(t *testing.T) {
	app, f := newTestApp(t)
	w := f.wallet(t)

	_, deposit := doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"deposit","amount":"100"}`)
	_, spend := doJSON(t, app, http.MethodPost, "/transactions", `{"wallet":"`+w.ID+`","txid":"spend","amount":"-60"}`)

	status, body := doJSON(t, app, http.MethodPatch, "/transactions/"+deposit["id"].(string), `{"amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "-60.000000000000000000", body["current_balance"])

	status, body = doJSON(t, app, http.MethodPatch, "/transactions/"+spend["id"].(string), `{"txid":"spend-renamed"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "spend-renamed", body["txid"])
	assert.Equal(t, "-60.000000000000000000", body["amount"])

	status, body = doJSON(t, app, http.MethodGet, "/transactions/"+spend["id"].(string), "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "spend-renamed", body["txid"])

	status, _ = doJSON(t, app, http.MethodGet, "/transactions/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandlerValidation(t *testing.T) {
	app, f := newTestApp(t)
	w := f.wallet(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing amount", `{"wallet":"` + w.ID + `","txid":"a"}`, http.StatusBadRequest},
		{"empty txid", `{"wallet":"` + w.ID + `","txid":"","amount":"1"}`, http.StatusBadRequest},
		{"too precise", `{"wallet":"` + w.ID + `","txid":"a","amount":"0.0000000000000000001"}`, http.StatusBadRequest},
		{"exponent out of range", `{"wallet":"` + w.ID + `","txid":"a","amount":"1e-30000000"}`, http.StatusBadRequest},
		{"not a number", `{"wallet":"` + w.ID + `","txid":"a","amount":"ten"}`, http.StatusBadRequest},
		{"unknown wallet", `{"wallet":"00000000-0000-0000-0000-000000000000","txid":"a","amount":"1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, "/transactions", tt.body)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandlerListFilters(t *testing.T) {
	app, f := newTestApp(t)
	w := f.wallet(t)
	for _, body := range []string{
		`{"wallet":"` + w.ID + `","txid":"order-1","amount":"10"}`,
		`{"wallet":"` + w.ID + `","txid":"order-2","amount":"25.5"}`,
		`{"wallet":"` + w.ID + `","txid":"refund-1","amount":"-5"}`,
	} {
		status, _ := doJSON(t, app, http.MethodPost, "/transactions", body)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := doJSON(t, app, http.MethodGet, "/transactions?wallet="+w.ID+"&txid=ORDER&min_amount=11&ordering=-amount", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "order-2", results[0].(map[string]any)["txid"])

	status, _ = doJSON(t, app, http.MethodGet, "/transactions?max_amount=abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, app, http.MethodGet, "/transactions?min_amount=1e-30000000", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = doJSON(t, app, http.MethodGet, "/transactions?max_amount=1e30000000", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
