package ledger

import (
	"fmt"
	"math"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps Offset and HasNext clear of int overflow.
	MaxPage = math.MaxInt / MaxPageSize
)

// Ordering fields accepted by the listings.
var (
	WalletOrderFields      = []string{"id", "label", "created_at"}
	TransactionOrderFields = []string{"id", "created_at", "amount"}
)

// Order is a single sort key. Field is one of the listing's allowed fields.
type Order struct {
	Field string
	Desc  bool
}

// ParseOrder parses "field" or "-field" against the allowed set. An empty
// string yields the fallback field ascending.
func ParseOrder(raw, fallback string, allowed []string) (Order, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Order{Field: fallback}, nil
	}
	order := Order{Field: raw}
	if strings.HasPrefix(raw, "-") {
		order = Order{Field: raw[1:], Desc: true}
	}
	for _, f := range allowed {
		if f == order.Field {
			return order, nil
		}
	}
	return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrder, raw)
}

// PageRequest selects a 1-based page of a listing.
type PageRequest struct {
	Page  int
	Size  int
	Order Order
}

// Normalize clamps page and size into their valid ranges.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Size
}

// Page is one slice of a listing plus the total number of matching rows.
type Page[T any] struct {
	Items []T
	Total int
	Page  int
	Size  int
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return p.Page*p.Size < p.Total
}

// HasPrevious reports whether a page precedes this one.
func (p Page[T]) HasPrevious() bool {
	return p.Page > 1
}

func paginate[T any](items []T, req PageRequest) Page[T] {
	page := Page[T]{Items: []T{}, Total: len(items), Page: req.Page, Size: req.Size}
	start := req.Offset()
	if start >= len(items) {
		return page
	}
	end := start + req.Size
	if end > len(items) {
		end = len(items)
	}
	page.Items = append(page.Items, items[start:end]...)
	return page
}
