package transactions

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/httpapi"
	"github.com/congo-pay/walletledger/internal/ledger"
)

// Handler exposes transaction HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a transaction HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Wallet string              `json:"wallet"`
	TxID   string              `json:"txid"`
	Amount decimal.NullDecimal `json:"amount"`
}

type amendRequest struct {
	TxID   string              `json:"txid"`
	Amount decimal.NullDecimal `json:"amount"`
}

type transactionResponse struct {
	ID        string    `json:"id"`
	Wallet    string    `json:"wallet"`
	TxID      string    `json:"txid"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(tx ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:        tx.ID,
		Wallet:    tx.WalletID,
		TxID:      tx.TxID,
		Amount:    ledger.FormatAmount(tx.Amount),
		CreatedAt: tx.CreatedAt,
	}
}

// Create records a transaction against a wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Create(c.UserContext(), CreateInput{WalletID: req.Wallet, TxID: req.TxID, Amount: req.Amount})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(tx))
}

// Amend changes the txid and/or amount of a transaction.
func (h *Handler) Amend(c *fiber.Ctx) error {
	var req amendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tx, err := h.service.Amend(c.UserContext(), c.Params("transactionId"), AmendInput{TxID: req.TxID, Amount: req.Amount})
	if err != nil {
		return err
	}
	return c.JSON(toResponse(tx))
}

// Get returns a single transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	tx, err := h.service.Get(c.UserContext(), c.Params("transactionId"))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(tx))
}

// List returns a filtered page of transactions.
func (h *Handler) List(c *fiber.Ctx) error {
	page, err := httpapi.PageParams(c, "created_at", ledger.TransactionOrderFields)
	if err != nil {
		return err
	}
	filter := ledger.TransactionFilter{
		WalletID:     c.Query("wallet"),
		TxIDContains: c.Query("txid"),
	}
	if filter.MinAmount, err = queryAmount(c, "min_amount"); err != nil {
		return err
	}
	if filter.MaxAmount, err = queryAmount(c, "max_amount"); err != nil {
		return err
	}

	result, err := h.service.List(c.UserContext(), filter, page)
	if err != nil {
		return err
	}
	return c.JSON(httpapi.NewPageResponse(c, result, toResponse))
}

func queryAmount(c *fiber.Ctx, key string) (decimal.NullDecimal, error) {
	raw := c.Query(key)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fiber.NewError(http.StatusBadRequest, key+" must be a decimal number")
	}
	if err := ledger.ValidateAmount(d); err != nil {
		return decimal.NullDecimal{}, fiber.NewError(http.StatusBadRequest, key+": "+err.Error())
	}
	return decimal.NewNullDecimal(d), nil
}
