package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"keyflow/internal/db"
	"keyflow/internal/metrics"
)

// Client speaks the common panel API shape shared by the supported
// fulfillment providers: form-encoded POSTs to the provider's endpoint
// with the credential key and an action, JSON back. Field types vary by
// provider (numbers arrive as strings on some panels), so responses are
// decoded loosely and coerced.
type Client struct {
	http    *fasthttp.Client
	timeout time.Duration
}

// NewClient builds a provider client with the given per-call timeout.
// The timeout bounds every outbound call; no ledger state is ever locked
// while a call is in flight.
func NewClient(timeout time.Duration) *Client {
	metrics.Init()
	return &Client{
		http:    &fasthttp.Client{},
		timeout: timeout,
	}
}

// RemoteService is one catalog entry as listed by a provider.
type RemoteService struct {
	ExternalID string
	Name       string
	Category   string
	Type       string
	Rate       float64
}

// OrderInfo is a provider's view of an order's current state.
type OrderInfo struct {
	Status     string
	Charge     string
	StartCount int
	Remains    int
	Currency   string

	// Raw is the decoded response body, persisted opaquely on the order.
	Raw map[string]interface{}
}

// Services lists the provider's catalog (import time only).
func (c *Client) Services(p db.Provider) ([]RemoteService, error) {
	body, err := c.do(p, "services", nil)
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		// Some panels answer errors as an object even for list actions.
		if msg := errorField(body); msg != "" {
			return nil, fmt.Errorf("provider %s: %s", p.Name, msg)
		}
		return nil, fmt.Errorf("provider %s: unexpected services response: %w", p.Name, err)
	}

	services := make([]RemoteService, 0, len(raw))
	for _, item := range raw {
		id := asString(item["service"])
		if id == "" {
			continue
		}
		services = append(services, RemoteService{
			ExternalID: id,
			Name:       asString(item["name"]),
			Category:   asString(item["category"]),
			Type:       asString(item["type"]),
			Rate:       asFloat(item["rate"]),
		})
	}
	return services, nil
}

// Submit places an order with the provider and returns the provider's
// own order identifier.
func (c *Client) Submit(p db.Provider, externalServiceID, target string, quantity int) (string, error) {
	body, err := c.do(p, "add", map[string]string{
		"service":  externalServiceID,
		"link":     target,
		"quantity": strconv.Itoa(quantity),
	})
	if err != nil {
		return "", err
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("provider %s: unexpected add response: %w", p.Name, err)
	}
	if msg := asString(resp["error"]); msg != "" {
		return "", fmt.Errorf("provider %s: %s", p.Name, msg)
	}
	orderID := asString(resp["order"])
	if orderID == "" {
		return "", fmt.Errorf("provider %s: add response missing order id", p.Name)
	}
	return orderID, nil
}

// Status queries the provider for the current state of an order.
func (c *Client) Status(p db.Provider, externalOrderID string) (OrderInfo, error) {
	body, err := c.do(p, "status", map[string]string{
		"order": externalOrderID,
	})
	if err != nil {
		return OrderInfo{}, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderInfo{}, fmt.Errorf("provider %s: unexpected status response: %w", p.Name, err)
	}
	if msg := asString(raw["error"]); msg != "" {
		return OrderInfo{}, fmt.Errorf("provider %s: %s", p.Name, msg)
	}

	return OrderInfo{
		Status:     asString(raw["status"]),
		Charge:     asString(raw["charge"]),
		StartCount: asInt(raw["start_count"]),
		Remains:    asInt(raw["remains"]),
		Currency:   asString(raw["currency"]),
		Raw:        raw,
	}, nil
}

// do issues one form-encoded POST to the provider endpoint and returns
// the response body.
func (c *Client) do(p db.Provider, action string, args map[string]string) ([]byte, error) {
	form := url.Values{}
	form.Set("key", p.APIKey)
	form.Set("action", action)
	for k, v := range args {
		form.Set(k, v)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(strings.TrimSpace(p.BaseURL))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString(form.Encode())

	start := time.Now()
	err := c.http.DoTimeout(req, resp, c.timeout)
	metrics.ProviderRequestDuration.WithLabelValues(p.Name, action).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("provider %s: %s request failed: %w", p.Name, action, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("provider %s: %s request returned HTTP %d", p.Name, action, resp.StatusCode())
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

func errorField(body []byte) string {
	var resp map[string]interface{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return asString(resp["error"])
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func asInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return n
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
