package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof" //nolint:gosec
	"os"
	"os/signal"
	runtimePprof "runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	supporthttp "github.com/stellar/go/support/http"
	supportlog "github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/config"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/db"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/wallet"
)

const (
	defaultReadTimeout         = 5 * time.Second
	defaultShutdownGracePeriod = 10 * time.Second
)

type Daemon struct {
	rpcClient       *rpcclient.Client
	journal         *db.Journal
	controller      *lifecycle.Controller
	jsonRPCHandler  *internal.Handler
	logger          *supportlog.Entry
	listener        net.Listener
	server          *http.Server
	adminListener   net.Listener
	adminServer     *http.Server
	closeOnce       sync.Once
	closeError      error
	done            chan struct{}
	metricsRegistry *prometheus.Registry
}

func (d *Daemon) Controller() *lifecycle.Controller {
	return d.controller
}

func (d *Daemon) Journal() *db.Journal {
	return d.journal
}

func (d *Daemon) GetEndpointAddrs() (net.TCPAddr, *net.TCPAddr) {
	addr := d.listener.Addr().(*net.TCPAddr)
	var adminAddr *net.TCPAddr
	if d.adminListener != nil {
		adminAddr = d.adminListener.Addr().(*net.TCPAddr)
	}
	return *addr, adminAddr
}

func (d *Daemon) close() {
	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), defaultShutdownGracePeriod)
	defer shutdownRelease()
	var closeErrors []error

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.WithError(err).Error("error during JSON RPC server Shutdown")
		closeErrors = append(closeErrors, err)
	}
	if d.adminServer != nil {
		if err := d.adminServer.Shutdown(shutdownCtx); err != nil {
			d.logger.WithError(err).Error("error during admin server Shutdown")
			closeErrors = append(closeErrors, err)
		}
	}

	d.controller.Close()
	d.jsonRPCHandler.Close()
	if err := d.rpcClient.Close(); err != nil {
		d.logger.WithError(err).Error("error closing RPC client")
		closeErrors = append(closeErrors, err)
	}
	if err := d.journal.Close(); err != nil {
		d.logger.WithError(err).Error("error closing journal")
		closeErrors = append(closeErrors, err)
	}
	d.closeError = errors.Join(closeErrors...)
	close(d.done)
}

func (d *Daemon) Close() error {
	d.closeOnce.Do(d.close)
	return d.closeError
}

func MustNew(cfg *config.Config, logger *supportlog.Entry) *Daemon {
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.UseJSONFormatter()
	}

	logger.WithFields(supportlog.F{
		"version": config.Version,
		"commit":  config.CommitHash,
		"rpc_url": cfg.RPCURL,
	}).Info("starting stellar-txtracker")

	daemon := &Daemon{
		logger:          logger,
		done:            make(chan struct{}),
		metricsRegistry: prometheus.NewRegistry(),
	}

	var approve wallet.ApproveFunc
	if cfg.Confirm {
		approve = wallet.PromptApprove
	}
	capabilities, err := NewCapabilities(cfg, logger, daemon, approve)
	if err != nil {
		logger.WithError(err).Fatal("could not set up wallet")
	}
	daemon.rpcClient = capabilities.Client

	daemon.journal, err = db.NewJournal(logger, daemon, cfg.JournalMaxEntries)
	if err != nil {
		logger.WithError(err).Fatal("could not open journal")
	}

	rec := &recorder{journal: daemon.journal, logger: logger}
	daemon.controller = NewController(cfg, capabilities, logger, daemon, rec.options())
	rec.lifecycleID = daemon.controller.NotifyingID

	jsonRPCHandler := internal.NewJSONRPCHandler(internal.HandlerParams{
		Submitter: daemon.controller,
		Journal:   daemon.journal,
		Upstream:  capabilities.Client,
		Logger:    logger,
		Daemon:    daemon,
	})
	daemon.jsonRPCHandler = &jsonRPCHandler

	httpHandler := supporthttp.NewAPIMux(logger)
	httpHandler.Handle("/", jsonRPCHandler)

	// Use a separate listener in order to obtain the actual TCP port
	// when using dynamic ports during testing (e.g. endpoint="localhost:0")
	daemon.listener, err = net.Listen("tcp", cfg.Endpoint)
	if err != nil {
		daemon.logger.WithError(err).WithField("endpoint", cfg.Endpoint).Fatal("cannot listen on endpoint")
	}
	daemon.server = &http.Server{
		Handler:     httpHandler,
		ReadTimeout: defaultReadTimeout,
	}
	if cfg.AdminEndpoint != "" {
		daemon.adminListener, err = net.Listen("tcp", cfg.AdminEndpoint)
		if err != nil {
			daemon.logger.WithError(err).WithField("endpoint", cfg.AdminEndpoint).Fatal("cannot listen on admin endpoint")
		}
		daemon.adminServer = &http.Server{Handler: daemon.adminRouter(), ReadTimeout: defaultReadTimeout}
	}
	daemon.registerMetrics()
	return daemon
}

func (d *Daemon) adminRouter() http.Handler {
	adminMux := supporthttp.NewMux(d.logger)
	adminMux.Route("/debug/pprof", func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		// add the entry points for:
		// goroutine, threadcreate, heap, allocs, block, mutex
		for _, profile := range runtimePprof.Profiles() {
			r.Handle("/"+profile.Name(), pprof.Handler(profile.Name()))
		}
	})
	adminMux.Handle("/metrics", promhttp.HandlerFor(d.metricsRegistry, promhttp.HandlerOpts{}))
	adminMux.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(d.controller.State()); err != nil {
			d.logger.WithError(err).Warn("could not write status")
		}
	})
	return adminMux
}

func (d *Daemon) Run() {
	d.logger.WithFields(supportlog.F{
		"addr": d.listener.Addr().String(),
	}).Info("starting HTTP server")

	go func() {
		if err := d.server.Serve(d.listener); !errors.Is(err, http.ErrServerClosed) {
			d.logger.WithError(err).Fatal("JSON RPC server encountered fatal error")
		}
	}()

	if d.adminServer != nil {
		d.logger.WithFields(supportlog.F{
			"addr": d.adminListener.Addr().String(),
		}).Info("starting Admin HTTP server")
		go func() {
			if err := d.adminServer.Serve(d.adminListener); !errors.Is(err, http.ErrServerClosed) {
				d.logger.WithError(err).Error("admin server encountered fatal error")
			}
		}()
	}

	// Shutdown gracefully when we receive an interrupt signal.
	// First server.Shutdown closes all open listeners, then closes all idle connections.
	// Finally, it waits a grace period (10s here) for connections to return to idle and then shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
		d.Close()
	case <-d.done:
		return
	}
}
