package internal

import (
	"context"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/methods"
)

const maxHTTPRequestSize = 512 * 1024 // half a megabyte

// Handler is an HTTP handler which serves the txtracker JSON RPC responses
type Handler struct {
	bridge jhttp.Bridge
	logger *log.Entry
	http.Handler
}

// Close closes all the resources held by the Handler instances.
// After Close is called the Handler instance will stop accepting JSON RPC requests.
func (h Handler) Close() {
	if err := h.bridge.Close(); err != nil {
		h.logger.WithError(err).Warn("could not close bridge")
	}
}

type HandlerParams struct {
	Submitter methods.Submitter
	Journal   methods.JournalReader
	Upstream  methods.UpstreamHealthChecker
	Logger    *log.Entry
	Daemon    interfaces.Daemon
}

// NewJSONRPCHandler constructs a Handler instance
func NewJSONRPCHandler(params HandlerParams) Handler {
	bridgeOptions := jhttp.BridgeOptions{
		Server: &jrpc2.ServerOptions{
			Logger: func(text string) { params.Logger.Debug(text) },
		},
	}
	handlers := []struct {
		methodName        string
		underlyingHandler jrpc2.Handler
		longName          string
	}{
		{
			methodName:        "getHealth",
			underlyingHandler: methods.NewHealthCheck(params.Upstream),
			longName:          "get_health",
		},
		{
			methodName:        "submitTransaction",
			underlyingHandler: methods.NewSubmitTransactionHandler(params.Logger, params.Submitter),
			longName:          "submit_transaction",
		},
		{
			methodName:        "getLifecycle",
			underlyingHandler: methods.NewGetLifecycleHandler(params.Submitter),
			longName:          "get_lifecycle",
		},
		{
			methodName:        "getLifecycleEvents",
			underlyingHandler: methods.NewGetLifecycleEventsHandler(params.Journal),
			longName:          "get_lifecycle_events",
		},
	}

	durationMetric := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  params.Daemon.MetricsNamespace(),
		Subsystem:  "json_rpc",
		Name:       "request_duration_seconds",
		Help:       "JSON RPC request duration, sliding window = 10m",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}, //nolint:mnd
	}, []string{"method", "status"})
	params.Daemon.MetricsRegistry().MustRegister(durationMetric)

	handlersMap := handler.Map{}
	for _, h := range handlers {
		handlersMap[h.methodName] = instrument(h.longName, h.underlyingHandler, durationMetric)
	}
	bridge := jhttp.NewBridge(handlersMap, &bridgeOptions)

	// globally enable CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
	})
	return Handler{
		bridge:  bridge,
		logger:  params.Logger,
		Handler: http.MaxBytesHandler(corsMiddleware.Handler(bridge), maxHTTPRequestSize),
	}
}

func instrument(name string, h jrpc2.Handler, durationMetric *prometheus.SummaryVec) jrpc2.Handler {
	return func(ctx context.Context, r *jrpc2.Request) (interface{}, error) {
		startTime := time.Now()
		result, err := h(ctx, r)
		status := "ok"
		if err != nil {
			status = "error"
		}
		durationMetric.With(prometheus.Labels{"method": name, "status": status}).
			Observe(time.Since(startTime).Seconds())
		return result, err
	}
}
