package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/transactions"
)

// RegisterTransactionRoutes wires the ledger entry endpoints. Entries are
// never deleted through the API.
func RegisterTransactionRoutes(r fiber.Router, h *transactions.Handler) {
	r.Get("/transactions", h.List)
	r.Post("/transactions", h.Create)
	r.Get("/transactions/:transactionId", h.Get)
	r.Patch("/transactions/:transactionId", h.Amend)
}
