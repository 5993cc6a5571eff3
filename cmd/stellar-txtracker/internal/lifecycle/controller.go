package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
)

var (
	errNotFound    = errors.New("transaction not found")
	errEmptyHandle = errors.New("wallet returned an empty transaction hash")
)

type Config struct {
	Wallet Wallet
	Ledger Ledger
	Logger *log.Entry
	Daemon interfaces.Daemon
	// NewBackOff returns the policy used between ledger lookups of one
	// transaction. It should never stop on its own; polling ends when the
	// transaction is found or the lifecycle is superseded.
	NewBackOff func() backoff.BackOff
}

// Options holds the lifecycle notifications. Every handler is optional.
// Handlers are called one at a time, in order, from whichever goroutine
// delivers them. They may call Submit.
//
// A notification is checked against the current lifecycle just before its
// handler runs, so a handler may still be running when a concurrent Submit
// supersedes its lifecycle. Handlers that need to know which lifecycle they
// belong to should use Controller.NotifyingID rather than State.
type Options struct {
	// OnPosting is called once a valid request was accepted, before the wallet is asked to post it.
	OnPosting func()
	// OnBroadcasting is called with the transaction hash once the wallet broadcast it.
	OnBroadcasting func(handle string)
	// OnSuccess is called when the transaction landed with a zero result code.
	OnSuccess func(handle string, record TxRecord)
	// OnError has two shapes. When broadcasting fails it receives the
	// classified message and the wallet error. When the transaction landed
	// with a non-zero result code it receives the hash and the TxRecord.
	OnError func(messageOrHandle string, detail any)
}

func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type notification struct {
	generation  uint64
	lifecycleID string
	fn          func()
}

// Controller drives one transaction at a time from submission to its ledger
// outcome. A new Submit supersedes whatever lifecycle is in flight.
type Controller struct {
	wallet     Wallet
	ledger     Ledger
	logger     *log.Entry
	newBackOff func() backoff.BackOff
	metrics    *metrics
	opts       Options

	mu         sync.Mutex
	generation uint64
	state      State
	cancel     context.CancelFunc
	queue      []notification
	draining   bool
	// notifying is the lifecycle id of the notification being delivered.
	notifying string
}

func New(cfg Config, opts Options) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger
	}
	newBackOff := cfg.NewBackOff
	if newBackOff == nil {
		newBackOff = DefaultBackOff
	}
	return &Controller{
		wallet:     cfg.Wallet,
		ledger:     cfg.Ledger,
		logger:     logger.WithField("subservice", "lifecycle"),
		newBackOff: newBackOff,
		metrics:    newMetrics(cfg.Daemon),
		opts:       opts,
	}
}

// Submit starts a new lifecycle for request and returns without waiting for
// it. Requests without a fee or without messages are ignored.
func (c *Controller) Submit(request TxRequest) {
	if !request.valid() {
		c.metrics.submits.WithLabelValues("ignored").Inc()
		return
	}
	c.metrics.submits.WithLabelValues("accepted").Inc()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	generation := c.generation
	c.cancel = cancel
	c.state = State{ID: uuid.NewString(), Phase: PhasePosting}
	logger := c.logger.WithField("lifecycle_id", c.state.ID)

	c.enqueue(generation, func() {
		if c.opts.OnPosting != nil {
			c.opts.OnPosting()
		}
	})
	c.enqueue(generation, func() {
		go c.post(ctx, generation, request, logger)
	})
	c.mu.Unlock()
	c.drain()
}

// Handle returns the hash of the current transaction, if it was broadcast.
func (c *Controller) Handle() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Handle, c.state.Handle != ""
}

// Record returns the ledger record of the current transaction, if it landed.
func (c *Controller) Record() (TxRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Record == nil {
		return TxRecord{}, false
	}
	return *c.state.Record, true
}

// NotifyingID returns the id of the lifecycle whose notification is being
// delivered. It is only meaningful when called from a handler.
func (c *Controller) NotifyingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.state
	if state.Record != nil {
		record := *state.Record
		state.Record = &record
	}
	return state
}

// Close abandons the current lifecycle. No further notifications are delivered for it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) post(ctx context.Context, generation uint64, request TxRequest, logger *log.Entry) {
	logger.WithField("operations", len(request.Msgs)).Debug("posting transaction")
	result, err := c.wallet.Post(ctx, request)
	if err == nil && result.Hash == "" {
		err = errEmptyHandle
	}

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		logger.Debug("discarding broadcast result of superseded lifecycle")
		return
	}

	if err != nil {
		message := Classify(err)
		c.state.Phase = PhaseErrored
		c.state.Reason = message
		c.enqueue(generation, func() {
			if c.opts.OnError != nil {
				c.opts.OnError(message, err)
			}
		})
		c.mu.Unlock()

		c.metrics.broadcastFailures.WithLabelValues(failureLabel(err)).Inc()
		logger.WithError(err).WithField("reason", message).Warn("transaction broadcast failed")
		c.drain()
		return
	}

	handle := result.Hash
	c.state.Phase = PhaseBroadcast
	c.state.Handle = handle
	logger = logger.WithField("tx_hash", handle)
	c.enqueue(generation, func() {
		if c.opts.OnBroadcasting != nil {
			c.opts.OnBroadcasting(handle)
		}
	})
	c.enqueue(generation, func() {
		go c.poll(ctx, generation, handle, logger)
	})
	c.mu.Unlock()

	logger.Info("transaction broadcast")
	c.drain()
}

func (c *Controller) poll(ctx context.Context, generation uint64, handle string, logger *log.Entry) {
	start := time.Now()
	var record TxRecord
	lookup := func() error {
		found, err := c.queryTx(ctx, handle, &record)
		if err != nil {
			return err
		}
		if !found {
			return errNotFound
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		entry := logger.WithField("retry_in", next.String())
		if errors.Is(err, errNotFound) {
			entry.Debug("transaction not in ledger yet")
			return
		}
		entry.WithError(err).Warn("could not look up transaction, retrying")
	}

	if err := backoff.RetryNotify(lookup, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			logger.Debug("stopped polling superseded transaction")
		} else {
			logger.WithError(err).Error("gave up polling transaction")
		}
		return
	}

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		logger.Debug("discarding record of superseded transaction")
		return
	}
	stored := record
	c.state.Phase = PhaseConfirmed
	c.state.Record = &stored
	if record.Succeeded() {
		c.state.Outcome = OutcomeSuccess
		c.enqueue(generation, func() {
			if c.opts.OnSuccess != nil {
				c.opts.OnSuccess(handle, record)
			}
		})
	} else {
		c.state.Outcome = OutcomeFailure
		c.enqueue(generation, func() {
			if c.opts.OnError != nil {
				c.opts.OnError(handle, record)
			}
		})
	}
	outcome := c.state.Outcome
	c.mu.Unlock()

	c.metrics.outcomes.WithLabelValues(outcome.String()).Inc()
	c.metrics.confirmation.Observe(time.Since(start).Seconds())
	logger.WithFields(log.F{
		"code":    record.Code,
		"ledger":  record.Ledger,
		"outcome": outcome.String(),
	}).Info("transaction finalized")
	c.drain()
}

func (c *Controller) queryTx(ctx context.Context, handle string, record *TxRecord) (bool, error) {
	rec, found, err := c.ledger.QueryTx(ctx, handle)
	switch {
	case err != nil:
		c.metrics.lookups.WithLabelValues("error").Inc()
		return false, err
	case !found:
		c.metrics.lookups.WithLabelValues("not_found").Inc()
		return false, nil
	default:
		c.metrics.lookups.WithLabelValues("found").Inc()
		*record = rec
		return true, nil
	}
}

// enqueue must be called with c.mu held, while c.state belongs to generation.
func (c *Controller) enqueue(generation uint64, fn func()) {
	c.queue = append(c.queue, notification{generation: generation, lifecycleID: c.state.ID, fn: fn})
}

// drain delivers queued notifications in order. Only one goroutine drains at a
// time; the others leave their notifications to it. Notifications of a
// superseded lifecycle are dropped.
func (c *Controller) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if next.generation != c.generation {
			continue
		}
		c.notifying = next.lifecycleID
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
	c.notifying = ""
	c.draining = false
	c.mu.Unlock()
}
