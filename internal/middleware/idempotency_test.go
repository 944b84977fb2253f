package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/logging"
)

type testApp struct {
	app   *fiber.App
	mr    *miniredis.Miniredis
	calls atomic.Int32
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	ta := &testApp{app: fiber.New(), mr: mr}
	ta.app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	ta.app.Post("/resource", func(c *fiber.Ctx) error {
		n := ta.calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	ta.app.Post("/conflict", func(c *fiber.Ctx) error {
		ta.calls.Add(1)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "busy"})
	})
	return ta
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	ta := setupTestApp(t)

	if status, _ := post(t, ta.app, "/resource", ""); status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	post(t, ta.app, "/resource", "")
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta := setupTestApp(t)

	status, first := post(t, ta.app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	status, second := post(t, ta.app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if got := ta.calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}
}

func TestIdempotencyDoesNotCacheConflicts(t *testing.T) {
	ta := setupTestApp(t)

	if status, _ := post(t, ta.app, "/conflict", "k1"); status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	post(t, ta.app, "/conflict", "k1")
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("conflict was replayed from cache; handler ran %d times", got)
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	ta := setupTestApp(t)
	if err := ta.mr.Set(idempotencyPrefix+"POST:/resource:busy", inProgressMarker); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	if status, _ := post(t, ta.app, "/resource", "busy"); status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if got := ta.calls.Load(); got != 0 {
		t.Fatalf("handler ran %d times for an in-flight key", got)
	}
}

func TestIdempotencyKeysAreScopedByPath(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/resource", "shared")
	if status, _ := post(t, ta.app, "/conflict", "shared"); status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if got := ta.calls.Load(); got != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", got)
	}
}
