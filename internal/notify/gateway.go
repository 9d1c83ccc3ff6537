// Package notify wraps the chat messaging API used to send booking
// confirmations. The gateway owns the messaging session lifecycle: it
// checks the instance's connection state before sending and attempts a
// reconnect when the session dropped.
//
// Sends go through a circuit breaker (sony/gobreaker) and a token-bucket
// rate limiter (golang.org/x/time/rate) so a misbehaving messaging API
// cannot be hammered by webhook retries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
)

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the outcome of a send. Sent=false with a Reason is a business
// skip, not an error; transport failures surface as errors instead.
type Result struct {
	Sent      bool
	Reason    string
	Recipient string
}

// Config defines the messaging gateway connection.
//
// BaseURL/APIKey/Instance identify the messaging API session.
// StateCacheTTL is how long a confirmed-open session is trusted before the
// connection state is re-checked.
type Config struct {
	BaseURL       string
	APIKey        string
	Instance      string
	CountryCode   string
	StateCacheTTL time.Duration

	SendsPerSecond float64
	SendBurst      int
}

func DefaultConfig() Config {
	return Config{
		CountryCode:    defaultCountryCode,
		StateCacheTTL:  30 * time.Second,
		SendsPerSecond: 1,
		SendBurst:      3,
	}
}

// Gateway is the confirmation-message sender.
type Gateway struct {
	config  Config
	client  HTTPClient
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	mu          sync.Mutex
	connected   bool
	lastChecked time.Time
}

func NewGateway(config Config, client HTTPClient, logger *slog.Logger) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.StateCacheTTL <= 0 {
		config.StateCacheTTL = DefaultConfig().StateCacheTTL
	}
	if config.SendsPerSecond <= 0 {
		config.SendsPerSecond = DefaultConfig().SendsPerSecond
	}
	if config.SendBurst <= 0 {
		config.SendBurst = DefaultConfig().SendBurst
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "messaging",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && counts.TotalFailures*2 >= counts.Requests
		},
	})

	return &Gateway{
		config:  config,
		client:  client,
		logger:  logger,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(config.SendsPerSecond), config.SendBurst),
	}
}

// SendConfirmation delivers the rendered message to the booking's phone.
// Business-level obstacles (no gateway configured, invalid phone, session
// down, circuit open) come back as Result{Sent: false}; transport and API
// errors come back as errors and are retried by the caller.
func (g *Gateway) SendConfirmation(ctx context.Context, booking *domain.Booking, message string) (Result, error) {
	if g.config.BaseURL == "" {
		return Result{Reason: "gateway not configured"}, nil
	}

	recipient := NormalizePhone(booking.Phone, g.config.CountryCode)
	if recipient == "" {
		return Result{Reason: "invalid phone"}, nil
	}

	connected, err := g.ensureConnected(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("check messaging session: %w", err)
	}
	if !connected {
		return Result{Reason: "gateway not connected"}, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	_, err = g.breaker.Execute(func() (interface{}, error) {
		return nil, g.sendText(ctx, recipient, message)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Result{Reason: "gateway circuit open"}, nil
	}
	if err != nil {
		var rejected *recipientRejectedError
		if errors.As(err, &rejected) {
			return Result{Reason: rejected.reason}, nil
		}
		return Result{}, err
	}

	return Result{Sent: true, Recipient: recipient}, nil
}

// recipientRejectedError marks a 4xx response about the recipient itself
// (e.g. number not registered on the chat app). Not retryable.
type recipientRejectedError struct {
	reason string
}

func (e *recipientRejectedError) Error() string {
	return e.reason
}

func (g *Gateway) sendText(ctx context.Context, recipient, message string) error {
	payload, err := json.Marshal(map[string]string{
		"number": recipient,
		"text":   message,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/message/sendText/%s", g.config.BaseURL, g.config.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.markDisconnected()
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return &recipientRejectedError{reason: "recipient rejected by gateway"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		g.markDisconnected()
		return fmt.Errorf("messaging API refused send: status %d: %s", resp.StatusCode, body)
	default:
		return fmt.Errorf("messaging API send failed: status %d", resp.StatusCode)
	}
}

// ensureConnected reports whether the messaging session is open, consulting
// a cached result within StateCacheTTL. A closed session triggers one
// reconnect attempt before giving up for this cycle.
func (g *Gateway) ensureConnected(ctx context.Context) (bool, error) {
	g.mu.Lock()
	if g.connected && time.Since(g.lastChecked) < g.config.StateCacheTTL {
		g.mu.Unlock()
		return true, nil
	}
	g.mu.Unlock()

	state, err := g.connectionState(ctx)
	if err != nil {
		return false, err
	}

	if state != "open" {
		g.logger.Warn("messaging session not open, attempting reconnect", "state", state)
		if err := g.reconnect(ctx); err != nil {
			g.logger.Warn("messaging reconnect failed", "error", err)
			g.setConnected(false)
			return false, nil
		}
		state, err = g.connectionState(ctx)
		if err != nil {
			return false, err
		}
	}

	open := state == "open"
	g.setConnected(open)
	return open, nil
}

func (g *Gateway) connectionState(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/instance/connectionState/%s", g.config.BaseURL, g.config.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connection state check failed: status %d", resp.StatusCode)
	}

	var state struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return "", fmt.Errorf("decode connection state: %w", err)
	}
	return state.Instance.State, nil
}

func (g *Gateway) reconnect(ctx context.Context) error {
	url := fmt.Sprintf("%s/instance/connect/%s", g.config.BaseURL, g.config.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.config.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("reconnect failed: status %d", resp.StatusCode)
	}
	return nil
}

func (g *Gateway) setConnected(connected bool) {
	g.mu.Lock()
	g.connected = connected
	g.lastChecked = time.Now()
	g.mu.Unlock()
}

func (g *Gateway) markDisconnected() {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}
