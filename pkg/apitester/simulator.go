package apitester

import (
	"context"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Simulator stands in for the API under test. When one is configured the
// session sends no probes and records whatever the simulator returns.
type Simulator interface {
	// DiscoverEndpoints returns the endpoints found at baseURL.
	DiscoverEndpoints(ctx context.Context, baseURL string) ([]model.Endpoint, error)

	// TestEndpoint returns the result of testing ep.
	TestEndpoint(ctx context.Context, ep model.Endpoint) (model.TestResult, error)
}
