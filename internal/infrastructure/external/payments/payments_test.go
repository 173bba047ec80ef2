package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/internal/domain/shared"
)

func chargeRequest(method payment.Method, token string) payment.ChargeRequest {
	return payment.ChargeRequest{
		UserID:         uuid.New(),
		Email:          "jane@example.com",
		Method:         method,
		Amount:         shared.Money(45000),
		Currency:       "usd",
		Token:          token,
		IdempotencyKey: "idem-1",
	}
}

func TestGooglePay_Charge(t *testing.T) {
	g := NewGooglePay()

	out, err := g.Charge(context.Background(), chargeRequest(payment.MethodGooglePay, "tok_abc"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "GOOGLEPAY-tok_abc", out.TransactionID)
	assert.Contains(t, string(out.Raw), `"amount_cents":45000`)

	out, err = g.Charge(context.Background(), chargeRequest(payment.MethodGooglePay, " "))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Reason)
}

func newStripeBackend(srv *httptest.Server) stripe.Backend {
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
}

func TestStripe_ChargeSucceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "45000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
		assert.Equal(t, "true", r.PostForm.Get("confirm"))
		assert.Equal(t, "jane@example.com", r.PostForm.Get("receipt_email"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":45000,"currency":"usd"}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", Backend: newStripeBackend(srv)})
	out, err := s.Charge(context.Background(), chargeRequest(payment.MethodStripe, "pm_card_visa"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "pi_123", out.TransactionID)
	assert.Contains(t, string(out.Raw), "pi_123")
}

func TestStripe_CardDeclineIsAnOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", Backend: newStripeBackend(srv)})
	out, err := s.Charge(context.Background(), chargeRequest(payment.MethodStripe, "pm_card_chargeDeclined"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Your card has insufficient funds.", out.Reason)
}

func TestStripe_ServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", Backend: newStripeBackend(srv)})
	_, err := s.Charge(context.Background(), chargeRequest(payment.MethodStripe, "pm_card_visa"))
	assert.Error(t, err)
}

func paypalServer(t *testing.T, capture http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)
		_, _ = w.Write([]byte(`{"access_token":"A21","token_type":"Bearer","expires_in":32400}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", capture)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func TestPayPal_CaptureCompleted(t *testing.T) {
	srv, tokenCalls := paypalServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ORDER-1", r.PathValue("id"))
		assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-9","status":"COMPLETED","amount":{"currency_code":"USD","value":"450.00"}}]}}]}`))
	})
	pp := NewPayPal(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"})

	out, err := pp.Charge(context.Background(), chargeRequest(payment.MethodPayPal, "ORDER-1"))
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "CAP-9", out.TransactionID)

	_, err = pp.Charge(context.Background(), chargeRequest(payment.MethodPayPal, "ORDER-1"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is cached")
}

func TestPayPal_AmountMismatchIsDeclined(t *testing.T) {
	srv, _ := paypalServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ORDER-2","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-1","amount":{"value":"1.00"}}]}}]}`))
	})
	pp := NewPayPal(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"})

	out, err := pp.Charge(context.Background(), chargeRequest(payment.MethodPayPal, "ORDER-2"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "CAP-1", out.TransactionID)
}

func TestPayPal_InstrumentDeclined(t *testing.T) {
	srv, _ := paypalServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`))
	})
	pp := NewPayPal(PayPalConfig{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"})

	out, err := pp.Charge(context.Background(), chargeRequest(payment.MethodPayPal, "ORDER-3"))
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "INSTRUMENT_DECLINED", out.Reason)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want shared.Money
	}{
		{"450.00", 45000},
		{"450", 45000},
		{"0.5", 50},
		{"12.345", 1234},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseAmount("abc")
	assert.Error(t, err)
}

type flakyGateway struct{ calls atomic.Int32 }

func (f *flakyGateway) Method() payment.Method { return payment.MethodStripe }

func (f *flakyGateway) Charge(context.Context, payment.ChargeRequest) (payment.Outcome, error) {
	f.calls.Add(1)
	return payment.Outcome{}, errors.New("connection reset")
}

func TestWithBreaker_OpensOnTransportErrors(t *testing.T) {
	inner := &flakyGateway{}
	g := WithBreaker(inner, nil)
	assert.Equal(t, payment.MethodStripe, g.Method())

	for i := 0; i < 5; i++ {
		_, err := g.Charge(context.Background(), chargeRequest(payment.MethodStripe, "pm"))
		require.Error(t, err)
	}
	_, err := g.Charge(context.Background(), chargeRequest(payment.MethodStripe, "pm"))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, int32(5), inner.calls.Load())
}

func TestWithBreaker_DeclinesDoNotTrip(t *testing.T) {
	g := WithBreaker(NewGooglePay(), nil)
	for i := 0; i < 10; i++ {
		out, err := g.Charge(context.Background(), chargeRequest(payment.MethodGooglePay, ""))
		require.NoError(t, err)
		assert.False(t, out.Success)
	}
}
