package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets", h.List)
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId", h.Get)
	r.Patch("/wallets/:walletId", h.Rename)
	r.Delete("/wallets/:walletId", h.Delete)
	r.Get("/wallets/:walletId/balance", h.Balance)
}
