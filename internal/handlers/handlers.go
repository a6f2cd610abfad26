// Package handlers serves the operational probes of the engine.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything that can report whether its backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handlers struct {
	Store    Pinger
	Sessions Pinger
	Version  string
	// Timeout bounds each readiness ping; zero means 5s.
	Timeout time.Duration
}

// Live answers as long as the process serves requests.
func (h *Handlers) Live(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// Ready pings the document store and the session store.
func (h *Handlers) Ready(c *fiber.Ctx) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	checks := fiber.Map{
		"store":    check(ctx, h.Store),
		"sessions": check(ctx, h.Sessions),
	}
	status := fiber.StatusOK
	overall := "healthy"
	for _, v := range checks {
		if v != "healthy" {
			status = fiber.StatusServiceUnavailable
			overall = "unhealthy"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"version": h.Version,
		"checks":  checks,
		"time":    time.Now().UTC(),
	})
}

func check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unavailable"
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
