package methods

import (
	"context"
	"fmt"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
)

const statusHealthy = "healthy"

type HealthCheckResult struct {
	Status string `json:"status"`
	// LatestLedger is the latest ledger known to the upstream RPC server.
	LatestLedger uint32 `json:"latestLedger"`
}

type UpstreamHealthChecker interface {
	GetHealth(ctx context.Context) (rpcclient.HealthCheckResult, error)
}

// NewHealthCheck returns a health check json rpc handler. The daemon is only
// as healthy as the RPC server it submits to.
func NewHealthCheck(upstream UpstreamHealthChecker) jrpc2.Handler {
	return handler.New(func(ctx context.Context) (HealthCheckResult, error) {
		health, err := upstream.GetHealth(ctx)
		if err != nil {
			return HealthCheckResult{}, &jrpc2.Error{
				Code:    jrpc2.InternalError,
				Message: fmt.Sprintf("upstream RPC server is unreachable: %v", err),
			}
		}
		if health.Status != statusHealthy {
			return HealthCheckResult{}, &jrpc2.Error{
				Code:    jrpc2.InternalError,
				Message: fmt.Sprintf("upstream RPC server reports status %q", health.Status),
			}
		}
		return HealthCheckResult{Status: statusHealthy, LatestLedger: health.LatestLedger}, nil
	})
}
