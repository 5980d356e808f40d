package payments

import (
	"context"
	"strings"
	"sync/atomic"
)

// SandboxGateway answers every create locally. cmd/api installs it for a
// provider whose credentials are not configured; tests use Fail to simulate
// an outage.
type SandboxGateway struct {
	Provider Provider
	Fail     error

	calls atomic.Int64
}

func (g *SandboxGateway) CreateIntent(_ context.Context, req GatewayRequest) (GatewayIntent, error) {
	g.calls.Add(1)
	if g.Fail != nil {
		return GatewayIntent{}, g.Fail
	}
	prefix := "pi_"
	if g.Provider == ProviderRazorpay {
		prefix = "order_"
	}
	id := prefix + strings.ReplaceAll(req.PaymentID, "-", "")
	return GatewayIntent{ProviderPaymentID: id, ClientSecret: id + "_secret"}, nil
}

func (g *SandboxGateway) Calls() int { return int(g.calls.Load()) }
