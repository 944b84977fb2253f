package httpapi

import (
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/ledger"
)

// PageResponse is the envelope returned by every listing endpoint.
type PageResponse[T any] struct {
	Count    int     `json:"count"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// PageParams reads page, page_size and ordering from the query string.
func PageParams(c *fiber.Ctx, fallbackOrder string, allowed []string) (ledger.PageRequest, error) {
	order, err := ledger.ParseOrder(c.Query("ordering"), fallbackOrder, allowed)
	if err != nil {
		return ledger.PageRequest{}, err
	}
	req := ledger.PageRequest{
		Page:  c.QueryInt("page", 1),
		Size:  c.QueryInt("page_size", ledger.DefaultPageSize),
		Order: order,
	}
	return req.Normalize(), nil
}

// NewPageResponse converts a ledger page, linking neighbouring pages with the
// request's own query string.
func NewPageResponse[S, T any](c *fiber.Ctx, page ledger.Page[S], convert func(S) T) PageResponse[T] {
	results := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		results = append(results, convert(item))
	}

	resp := PageResponse[T]{
		Count:    page.Total,
		Page:     page.Page,
		PageSize: page.Size,
		Results:  results,
	}
	if page.HasNext() {
		link := pageLink(c, page.Page+1)
		resp.Next = &link
	}
	if page.HasPrevious() {
		link := pageLink(c, page.Page-1)
		resp.Previous = &link
	}
	return resp
}

func pageLink(c *fiber.Ctx, page int) string {
	query := url.Values{}
	for k, v := range c.Queries() {
		query.Set(k, v)
	}
	query.Set("page", strconv.Itoa(page))
	return c.BaseURL() + c.Path() + "?" + query.Encode()
}
