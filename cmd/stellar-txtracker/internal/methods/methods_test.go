package methods

import (
	"context"
	"errors"
	"testing"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/support/log"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/db"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/lifecycle"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/ops"
	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/rpcclient"
)

// stalledWallet never finishes posting, so submitted lifecycles stay in the posting phase.
type stalledWallet struct {
	requests chan lifecycle.TxRequest
}

func (w stalledWallet) Post(ctx context.Context, request lifecycle.TxRequest) (lifecycle.BroadcastResult, error) {
	w.requests <- request
	<-ctx.Done()
	return lifecycle.BroadcastResult{}, ctx.Err()
}

type unusedLedger struct{}

func (unusedLedger) QueryTx(context.Context, string) (lifecycle.TxRecord, bool, error) {
	return lifecycle.TxRecord{}, false, nil
}

type upstreamHealth struct {
	result rpcclient.HealthCheckResult
	err    error
}

func (u upstreamHealth) GetHealth(context.Context) (rpcclient.HealthCheckResult, error) {
	return u.result, u.err
}

func newTestClient(t *testing.T, methods handler.Map) *jrpc2.Client {
	cch, sch := channel.Direct()
	server := jrpc2.NewServer(methods, nil).Start(sch)
	client := jrpc2.NewClient(cch, nil)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func requireRPCError(t *testing.T, err error, code jrpc2.Code) {
	var rpcErr *jrpc2.Error
	require.True(t, errors.As(err, &rpcErr), "expected a JSON-RPC error, got %v", err)
	assert.Equal(t, code, rpcErr.Code)
}

func TestSubmitTransaction(t *testing.T) {
	wallet := stalledWallet{requests: make(chan lifecycle.TxRequest, 4)}
	controller := lifecycle.New(lifecycle.Config{
		Wallet: wallet,
		Ledger: unusedLedger{},
		Daemon: interfaces.MakeNoOpDaemon(),
	}, lifecycle.Options{})
	t.Cleanup(controller.Close)

	client := newTestClient(t, handler.Map{
		"submitTransaction": NewSubmitTransactionHandler(log.DefaultLogger, controller),
		"getLifecycle":      NewGetLifecycleHandler(controller),
	})
	ctx := context.Background()
	fee := int64(200)
	payment := ops.Spec{Type: ops.TypePayment, Destination: keypair.MustRandom().Address(), Amount: "1.5"}

	t.Run("accepted", func(t *testing.T) {
		var response SubmitTransactionResponse
		err := client.CallResult(ctx, "submitTransaction", SubmitTransactionRequest{
			Operations: []ops.Spec{payment},
			BaseFee:    &fee,
			Memo:       "hello",
		}, &response)
		require.NoError(t, err)
		assert.True(t, response.Accepted)
		assert.NotEmpty(t, response.ID)

		request := <-wallet.requests
		require.Len(t, request.Msgs, 1)
		assert.Equal(t, &lifecycle.Fee{BaseFee: 200, Memo: "hello"}, request.Fee)

		var state lifecycle.State
		require.NoError(t, client.CallResult(ctx, "getLifecycle", nil, &state))
		assert.Equal(t, response.ID, state.ID)
		assert.Equal(t, lifecycle.PhasePosting, state.Phase)
	})

	t.Run("no operations", func(t *testing.T) {
		before := controller.State()
		var response SubmitTransactionResponse
		err := client.CallResult(ctx, "submitTransaction", SubmitTransactionRequest{BaseFee: &fee}, &response)
		require.NoError(t, err)
		assert.False(t, response.Accepted)
		assert.Empty(t, response.ID)
		assert.Equal(t, before, controller.State())
	})

	t.Run("no fee", func(t *testing.T) {
		var response SubmitTransactionResponse
		err := client.CallResult(ctx, "submitTransaction", SubmitTransactionRequest{
			Operations: []ops.Spec{payment},
		}, &response)
		require.NoError(t, err)
		assert.False(t, response.Accepted)
	})

	t.Run("invalid operation", func(t *testing.T) {
		err := client.CallResult(ctx, "submitTransaction", SubmitTransactionRequest{
			Operations: []ops.Spec{{Type: ops.TypePayment, Destination: "nope", Amount: "1"}},
			BaseFee:    &fee,
		}, nil)
		requireRPCError(t, err, jrpc2.InvalidParams)
	})

	t.Run("memo too long", func(t *testing.T) {
		err := client.CallResult(ctx, "submitTransaction", SubmitTransactionRequest{
			Operations: []ops.Spec{payment},
			BaseFee:    &fee,
			Memo:       "this memo is definitely longer than allowed",
		}, nil)
		requireRPCError(t, err, jrpc2.InvalidParams)
	})
}

func TestGetLifecycleIdle(t *testing.T) {
	controller := lifecycle.New(lifecycle.Config{
		Wallet: stalledWallet{},
		Ledger: unusedLedger{},
		Daemon: interfaces.MakeNoOpDaemon(),
	}, lifecycle.Options{})
	client := newTestClient(t, handler.Map{"getLifecycle": NewGetLifecycleHandler(controller)})

	var raw map[string]any
	require.NoError(t, client.CallResult(context.Background(), "getLifecycle", nil, &raw))
	assert.Equal(t, map[string]any{"phase": "idle"}, raw)
}

func TestGetLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	journal, err := db.NewJournal(nil, interfaces.MakeNoOpDaemon(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, journal.Close()) })
	for _, event := range []string{db.EventPosting, db.EventBroadcasting, db.EventSuccess} {
		_, err := journal.Append(ctx, db.Entry{LifecycleID: "a", Event: event, Handle: "H1"})
		require.NoError(t, err)
	}
	client := newTestClient(t, handler.Map{"getLifecycleEvents": NewGetLifecycleEventsHandler(journal)})

	var response GetLifecycleEventsResponse
	require.NoError(t, client.CallResult(ctx, "getLifecycleEvents", GetLifecycleEventsRequest{Limit: 2}, &response))
	require.Len(t, response.Events, 2)
	assert.Equal(t, db.EventPosting, response.Events[0].Event)
	assert.Equal(t, int64(2), response.Cursor)

	require.NoError(t, client.CallResult(ctx, "getLifecycleEvents", GetLifecycleEventsRequest{Cursor: response.Cursor}, &response))
	require.Len(t, response.Events, 1)
	assert.Equal(t, db.EventSuccess, response.Events[0].Event)
	assert.Equal(t, int64(3), response.Cursor)

	require.NoError(t, client.CallResult(ctx, "getLifecycleEvents", GetLifecycleEventsRequest{Cursor: 3}, &response))
	assert.Empty(t, response.Events)
	assert.Equal(t, int64(3), response.Cursor)

	err = client.CallResult(ctx, "getLifecycleEvents", GetLifecycleEventsRequest{Limit: maxEventsLimit + 1}, &response)
	requireRPCError(t, err, jrpc2.InvalidParams)
	err = client.CallResult(ctx, "getLifecycleEvents", GetLifecycleEventsRequest{Cursor: -1}, &response)
	requireRPCError(t, err, jrpc2.InvalidParams)
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name     string
		upstream upstreamHealth
		healthy  bool
	}{
		{"healthy", upstreamHealth{result: rpcclient.HealthCheckResult{Status: "healthy", LatestLedger: 42}}, true},
		{"unreachable", upstreamHealth{err: errors.New("connection refused")}, false},
		{"unhealthy", upstreamHealth{result: rpcclient.HealthCheckResult{Status: "catching_up"}}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, handler.Map{"getHealth": NewHealthCheck(tc.upstream)})
			var result HealthCheckResult
			err := client.CallResult(ctx, "getHealth", nil, &result)
			if !tc.healthy {
				requireRPCError(t, err, jrpc2.InternalError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, HealthCheckResult{Status: "healthy", LatestLedger: 42}, result)
		})
	}
}
