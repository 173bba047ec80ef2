// Package payments adapts the Stripe, PayPal and Google Pay gateways to
// payment.Gateway.
package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/campus-enroll/registration-hub/internal/domain/payment"
	"github.com/campus-enroll/registration-hub/pkg/circuitbreaker"
)

// ErrGatewayUnavailable is returned while a gateway's circuit is open.
var ErrGatewayUnavailable = errors.New("payment gateway temporarily unavailable")

// guarded trips a breaker on transport errors only. Declines come back as
// Outcomes with a nil error and never count as failures.
type guarded struct {
	gateway payment.Gateway
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps g in a circuit breaker named after its method.
func WithBreaker(g payment.Gateway, logger *slog.Logger) payment.Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	onState := func(name string, from, to circuitbreaker.State) {
		logger.Warn("payment circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	isFailure := func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled)
	}
	return &guarded{
		gateway: g,
		breaker: circuitbreaker.PaymentGatewayBreaker(string(g.Method()), isFailure, onState),
	}
}

func (g *guarded) Method() payment.Method {
	return g.gateway.Method()
}

func (g *guarded) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Outcome, error) {
	outcome, err := circuitbreaker.Do(ctx, g.breaker, func(ctx context.Context) (payment.Outcome, error) {
		return g.gateway.Charge(ctx, req)
	})
	if circuitbreaker.IsRejected(err) {
		return payment.Outcome{}, ErrGatewayUnavailable
	}
	return outcome, err
}
