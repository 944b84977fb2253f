package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/ledger"
)

func newPagedApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: Handler})
	app.Get("/items", func(c *fiber.Ctx) error {
		req, err := PageParams(c, "created_at", ledger.TransactionOrderFields)
		if err != nil {
			return err
		}
		page := ledger.Page[int]{Items: []int{1, 2}, Total: 7, Page: req.Page, Size: req.Size}
		return c.JSON(NewPageResponse(c, page, func(i int) int { return i * 10 }))
	})
	return app
}

func TestNewPageResponseLinksNeighbours(t *testing.T) {
	resp, err := newPagedApp().Test(httptest.NewRequest(http.MethodGet, "http://ledger.test/items?page=2&page_size=2&ordering=-amount", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PageResponse[int]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 7, body.Count)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 2, body.PageSize)
	assert.Equal(t, []int{10, 20}, body.Results)
	require.NotNil(t, body.Next)
	assert.Equal(t, "http://ledger.test/items?ordering=-amount&page=3&page_size=2", *body.Next)
	require.NotNil(t, body.Previous)
	assert.Contains(t, *body.Previous, "page=1")
}

func TestPageParamsRejectsUnknownOrdering(t *testing.T) {
	resp, err := newPagedApp().Test(httptest.NewRequest(http.MethodGet, "/items?ordering=balance", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
