package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

// PayPalConfig configures the PayPal gateway.
type PayPalConfig struct {
	// BaseURL is https://api-m.sandbox.paypal.com or https://api-m.paypal.com.
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// PayPal captures an order the buyer already approved. The token is the
// PayPal order id.
type PayPal struct {
	config     PayPalConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewPayPal creates the PayPal gateway.
func NewPayPal(cfg PayPalConfig) *PayPal {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PayPal{config: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Method implements payment.Gateway.
func (p *PayPal) Method() payment.Method {
	return payment.MethodPayPal
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (e *paypalError) reason() string {
	if len(e.Details) > 0 && e.Details[0].Issue != "" {
		return e.Details[0].Issue
	}
	if e.Name != "" {
		return e.Name
	}
	return "paypal capture rejected"
}

// Charge implements payment.Gateway. A 422 or an order that is not COMPLETED
// is a decline; auth failures and 5xx are errors.
func (p *PayPal) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Outcome, error) {
	token, err := p.token(ctx)
	if err != nil {
		return payment.Outcome{}, err
	}

	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", p.config.BaseURL, url.PathEscape(req.Token))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return payment.Outcome{}, fmt.Errorf("paypal: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "return=representation")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("PayPal-Request-Id", req.IdempotencyKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return payment.Outcome{}, fmt.Errorf("paypal: capture: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payment.Outcome{}, fmt.Errorf("paypal: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusNotFound:
		var perr paypalError
		_ = json.Unmarshal(raw, &perr)
		return payment.Outcome{Reason: perr.reason(), Raw: raw}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		p.dropToken()
		return payment.Outcome{}, errors.New("paypal: access token rejected")
	case resp.StatusCode >= 300:
		return payment.Outcome{}, fmt.Errorf("paypal: capture returned status %d", resp.StatusCode)
	}

	var order paypalOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return payment.Outcome{}, fmt.Errorf("paypal: decode order: %w", err)
	}
	if order.Status != "COMPLETED" {
		return payment.Outcome{Reason: "paypal order status " + order.Status, Raw: raw}, nil
	}

	txID := order.ID
	if c := firstCapture(order); c != nil {
		txID = c.ID
		if paid, err := parseAmount(c.Amount.Value); err == nil && paid != req.Amount {
			return payment.Outcome{
				TransactionID: c.ID,
				Reason:        fmt.Sprintf("captured %s but %s was due", paid, req.Amount),
				Raw:           raw,
			}, nil
		}
	}
	return payment.Outcome{Success: true, TransactionID: txID, Raw: raw}, nil
}

// token returns a cached client-credentials token, refreshing it a minute
// before expiry.
func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.expiresAt) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: create token request: %w", err)
	}
	req.SetBasicAuth(p.config.ClientID, p.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal: token request returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("paypal: decode token: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("paypal: empty access token")
	}

	p.accessToken = body.AccessToken
	p.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

func (p *PayPal) dropToken() {
	p.mu.Lock()
	p.accessToken = ""
	p.mu.Unlock()
}

func firstCapture(o paypalOrder) *paypalCapture {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

// parseAmount converts a decimal string such as "450.00" to minor units.
func parseAmount(value string) (shared.Money, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(value), ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	return shared.Money(units*100 + cents), nil
}
