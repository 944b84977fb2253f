// Package httpapi holds the HTTP conventions shared by the ledger handlers.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// Status returns the HTTP status code for err.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNegativeBalance),
		errors.Is(err, ledger.ErrDuplicateTxID),
		errors.Is(err, ledger.ErrInvalidTxID),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidLabel),
		errors.Is(err, ledger.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Handler is the fiber error handler. It renders {"error": message} and adds
// the balance details for rejected transactions.
func Handler(c *fiber.Ctx, err error) error {
	status := Status(err)
	body := fiber.Map{"error": err.Error()}

	var nbe *ledger.NegativeBalanceError
	switch {
	case errors.As(err, &nbe):
		body["current_balance"] = ledger.FormatAmount(nbe.CurrentBalance)
		body["amount"] = ledger.FormatAmount(nbe.Amount)
	case status == http.StatusServiceUnavailable:
		body["error"] = "ledger temporarily unavailable"
	case status == http.StatusInternalServerError:
		body["error"] = "internal server error"
	}
	if status == http.StatusConflict || status == http.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, "1")
	}

	return c.Status(status).JSON(body)
}
