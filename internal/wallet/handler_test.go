package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/httpapi"
	"github.com/congo-pay/walletledger/internal/ledger"
)

func newTestApp(t *testing.T) (*fiber.App, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: httpapi.Handler})
	app.Get("/wallets", h.List)
	app.Post("/wallets", h.Create)
	app.Get("/wallets/:walletId", h.Get)
	app.Patch("/wallets/:walletId", h.Rename)
	app.Delete("/wallets/:walletId", h.Delete)
	app.Get("/wallets/:walletId/balance", h.Balance)
	return app, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestHandlerWalletLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp, created := doJSON(t, app, http.MethodPost, "/wallets", `{"label":"Main"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Main", created["label"])
	assert.Equal(t, "0.000000000000000000", created["balance"])
	id := created["id"].(string)

	resp, renamed := doJSON(t, app, http.MethodPatch, "/wallets/"+id, `{"label":"Primary"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Primary", renamed["label"])

	resp, balance := doJSON(t, app, http.MethodGet, "/wallets/"+id+"/balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, balance["wallet_id"])

	resp, _ = doJSON(t, app, http.MethodDelete, "/wallets/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, missing := doJSON(t, app, http.MethodGet, "/wallets/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "wallet not found", missing["error"])
}

func TestHandlerCreateValidatesLabel(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/wallets", `{"label":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, _ = doJSON(t, app, http.MethodPost, "/wallets", `{"label":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerListFiltersAndPages(t *testing.T) {
	app, _ := newTestApp(t)
	for _, label := range []string{"Savings", "Checking", "Holiday savings"} {
		resp, _ := doJSON(t, app, http.MethodPost, "/wallets", `{"label":"`+label+`"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodGet, "/wallets?label=savings&ordering=-label&page_size=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Savings", results[0].(map[string]any)["label"])
	assert.NotNil(t, body["next"])
	assert.Nil(t, body["previous"])

	resp, _ = doJSON(t, app, http.MethodGet, "/wallets?ordering=balance", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerUnknownWallet(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/wallets/"+uuid.NewString()+"/balance", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodDelete, "/wallets/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerGetEmbedsTransactions(t *testing.T) {
	svc, engine, _ := newTestService(t)
	h := NewHandler(svc)
	app := fiber.New(fiber.Config{ErrorHandler: httpapi.Handler})
	app.Get("/wallets/:walletId", h.Get)

	w, err := svc.Create(context.Background(), "Main")
	require.NoError(t, err)
	for i := 0; i < ledger.DefaultPageSize+2; i++ {
		deposit(t, engine, w.ID, fmt.Sprintf("tx-%02d", i), "1")
	}

	resp, body := doJSON(t, app, http.MethodGet, "/wallets/"+w.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12.000000000000000000", body["balance"])
	assert.EqualValues(t, ledger.DefaultPageSize+2, body["transaction_count"])

	txs := body["transactions"].([]any)
	require.Len(t, txs, ledger.DefaultPageSize)
	first := txs[0].(map[string]any)
	assert.Equal(t, "tx-00", first["txid"])
	assert.Equal(t, "1.000000000000000000", first["amount"])
}
