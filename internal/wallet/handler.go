package wallet

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/httpapi"
	"github.com/congo-pay/walletledger/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type labelRequest struct {
	Label string `json:"label"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(w ledger.WalletBalance) walletResponse {
	return walletResponse{
		ID:        w.ID,
		Label:     w.Label,
		Balance:   ledger.FormatAmount(w.Balance),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type transactionResponse struct {
	ID        string    `json:"id"`
	TxID      string    `json:"txid"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type detailResponse struct {
	walletResponse
	TransactionCount int                   `json:"transaction_count"`
	Transactions     []transactionResponse `json:"transactions"`
}

func toDetailResponse(d Detail) detailResponse {
	txs := make([]transactionResponse, 0, len(d.Transactions.Items))
	for _, tx := range d.Transactions.Items {
		txs = append(txs, transactionResponse{
			ID:        tx.ID,
			TxID:      tx.TxID,
			Amount:    ledger.FormatAmount(tx.Amount),
			CreatedAt: tx.CreatedAt,
		})
	}
	return detailResponse{
		walletResponse:   toResponse(d.WalletBalance),
		TransactionCount: d.Transactions.Total,
		Transactions:     txs,
	}
}

// Create opens a wallet with a zero balance.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req labelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), req.Label)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(ledger.WalletBalance{Wallet: w}))
}

// List returns a page of wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	page, err := httpapi.PageParams(c, "created_at", ledger.WalletOrderFields)
	if err != nil {
		return err
	}
	result, err := h.service.List(c.UserContext(), ledger.WalletFilter{LabelContains: c.Query("label")}, page)
	if err != nil {
		return err
	}
	return c.JSON(httpapi.NewPageResponse(c, result, toResponse))
}

// Get returns a single wallet with its balance and its oldest transactions.
// The full history is paged through GET /transactions?wallet=<id>.
func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.service.Detail(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return err
	}
	return c.JSON(toDetailResponse(d))
}

// Rename updates the wallet label.
func (h *Handler) Rename(c *fiber.Ctx) error {
	var req labelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Rename(c.UserContext(), c.Params("walletId"), req.Label)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(w))
}

// Delete removes the wallet and its transactions.
func (h *Handler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("walletId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	balance, err := h.service.Balance(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": balance.WalletID,
		"balance":   ledger.FormatAmount(balance.Amount),
		"timestamp": balance.AsOf,
	})
}
