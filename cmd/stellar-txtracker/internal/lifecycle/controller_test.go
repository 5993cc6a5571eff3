package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"

	"github.com/stellar/stellar-txtracker/cmd/stellar-txtracker/internal/daemon/interfaces"
)

const waitFor = 5 * time.Second

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) Post(ctx context.Context, request TxRequest) (BroadcastResult, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(BroadcastResult), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) QueryTx(ctx context.Context, handle string) (TxRecord, bool, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(TxRecord), args.Bool(1), args.Error(2)
}

type event struct {
	name   string
	arg    string
	detail any
}

// recorder collects notifications in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) names() []string {
	var names []string
	for _, e := range r.snapshot() {
		names = append(names, e.name+":"+e.arg)
	}
	return names
}

func (r *recorder) options() Options {
	return Options{
		OnPosting:      func() { r.add(event{name: "posting"}) },
		OnBroadcasting: func(handle string) { r.add(event{name: "broadcasting", arg: handle}) },
		OnSuccess: func(handle string, record TxRecord) {
			r.add(event{name: "success", arg: handle, detail: record})
		},
		OnError: func(messageOrHandle string, detail any) {
			r.add(event{name: "error", arg: messageOrHandle, detail: detail})
		},
	}
}

func (r *recorder) waitForLen(t *testing.T, n int) {
	require.Eventually(t, func() bool {
		return len(r.snapshot()) >= n
	}, waitFor, time.Millisecond)
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func newTestController(wallet Wallet, ledger Ledger, opts Options) *Controller {
	return New(Config{
		Wallet:     wallet,
		Ledger:     ledger,
		Daemon:     interfaces.MakeNoOpDaemon(),
		NewBackOff: fastBackOff,
	}, opts)
}

func validRequest() TxRequest {
	return TxRequest{
		Msgs: []txnbuild.Operation{&txnbuild.BumpSequence{BumpTo: 10}},
		Fee:  &Fee{BaseFee: txnbuild.MinBaseFee},
	}
}

func TestSubmitIgnoresIncompleteRequests(t *testing.T) {
	wallet := &mockWallet{}
	ledger := &mockLedger{}
	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())

	payment := &txnbuild.Payment{
		Destination: keypair.MustRandom().Address(),
		Amount:      "1",
		Asset:       txnbuild.NativeAsset{},
	}
	for _, request := range []TxRequest{
		{},
		{Msgs: []txnbuild.Operation{payment}},
		{Fee: &Fee{BaseFee: 100}},
		{Msgs: []txnbuild.Operation{}, Fee: &Fee{BaseFee: 100}},
	} {
		controller.Submit(request)
	}

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, State{Phase: PhaseIdle}, controller.State())
	_, ok := controller.Handle()
	assert.False(t, ok)
	wallet.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestSubmitSuccessAfterNotFound(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	record := TxRecord{Hash: "H1", Status: "SUCCESS", Code: 0, Ledger: 12}
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H1").Return(TxRecord{}, false, nil).Twice()
	ledger.On("QueryTx", mock.Anything, "H1").Return(record, true, nil).Once()

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 3)

	events := rec.snapshot()
	assert.Equal(t, []string{"posting:", "broadcasting:H1", "success:H1"}, rec.names())
	assert.Equal(t, record, events[2].detail)

	// no further lookups once the record was classified
	time.Sleep(10 * time.Millisecond)
	ledger.AssertNumberOfCalls(t, "QueryTx", 3)
	assert.Len(t, rec.snapshot(), 3)

	handle, ok := controller.Handle()
	require.True(t, ok)
	assert.Equal(t, "H1", handle)
	stored, ok := controller.Record()
	require.True(t, ok)
	assert.Equal(t, record, stored)

	state := controller.State()
	assert.Equal(t, PhaseConfirmed, state.Phase)
	assert.Equal(t, OutcomeSuccess, state.Outcome)
	assert.NotEmpty(t, state.ID)
}

func TestSubmitLedgerFailureReportsHandleAndRecord(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	record := TxRecord{Hash: "H1", Status: "FAILED", Code: -1}
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H1").Return(record, true, nil).Once()

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 3)

	events := rec.snapshot()
	assert.Equal(t, []string{"posting:", "broadcasting:H1", "error:H1"}, rec.names())
	assert.Equal(t, record, events[2].detail)
	assert.Equal(t, OutcomeFailure, controller.State().Outcome)
}

func TestSubmitUserDenied(t *testing.T) {
	denied := NewBroadcastError(UserDenied, errors.New("declined"))
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{}, denied).Once()
	ledger := &mockLedger{}

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 2)

	events := rec.snapshot()
	assert.Equal(t, []string{"posting:", "error:User Denied"}, rec.names())
	assert.Equal(t, denied, events[1].detail)

	time.Sleep(10 * time.Millisecond)
	ledger.AssertNotCalled(t, "QueryTx", mock.Anything, mock.Anything)
	state := controller.State()
	assert.Equal(t, PhaseErrored, state.Phase)
	assert.Equal(t, "User Denied", state.Reason)
	_, ok := controller.Handle()
	assert.False(t, ok)
}

func TestSubmitUntypedWalletError(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{}, errors.New("dial tcp: connection refused")).Once()

	rec := &recorder{}
	controller := newTestController(wallet, &mockLedger{}, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 2)
	assert.Equal(t, []string{"posting:", "error:Unknown Error: dial tcp: connection refused"}, rec.names())
}

func TestSubmitEmptyHashIsAnError(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{}, nil).Once()

	rec := &recorder{}
	controller := newTestController(wallet, &mockLedger{}, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 2)
	assert.Equal(t, "error", rec.snapshot()[1].name)
}

func TestLookupErrorsAreRetried(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H1").Return(TxRecord{}, false, errors.New("503 service unavailable")).Twice()
	ledger.On("QueryTx", mock.Anything, "H1").Return(TxRecord{Hash: "H1"}, true, nil).Once()

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())
	controller.Submit(validRequest())
	rec.waitForLen(t, 3)
	assert.Equal(t, []string{"posting:", "broadcasting:H1", "success:H1"}, rec.names())
}

// pendingLedger never finds anything and counts lookups.
type pendingLedger struct {
	lookups atomic.Int64
}

func (l *pendingLedger) QueryTx(context.Context, string) (TxRecord, bool, error) {
	l.lookups.Add(1)
	return TxRecord{}, false, nil
}

func TestNotFoundNeverNotifies(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	ledger := &pendingLedger{}

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())
	controller.Submit(validRequest())

	require.Eventually(t, func() bool {
		return ledger.lookups.Load() >= 20
	}, waitFor, time.Millisecond)
	controller.Close()

	assert.Equal(t, []string{"posting:", "broadcasting:H1"}, rec.names())
	assert.Equal(t, PhaseBroadcast, controller.State().Phase)
}

// scriptedWallet hands out hashes in order, optionally holding a post until released.
type scriptedWallet struct {
	mu      sync.Mutex
	hashes  []string
	holds   map[string]chan struct{}
	started chan string
}

func (w *scriptedWallet) Post(_ context.Context, _ TxRequest) (BroadcastResult, error) {
	w.mu.Lock()
	hash := w.hashes[0]
	w.hashes = w.hashes[1:]
	hold := w.holds[hash]
	w.mu.Unlock()

	if w.started != nil {
		w.started <- hash
	}
	if hold != nil {
		<-hold
	}
	return BroadcastResult{Hash: hash}, nil
}

// lateLedger answers a lookup for a held hash only once it is released, ignoring cancellation.
type lateLedger struct {
	holds   map[string]chan struct{}
	waiting chan string
}

func (l *lateLedger) QueryTx(_ context.Context, handle string) (TxRecord, bool, error) {
	if hold, ok := l.holds[handle]; ok {
		l.waiting <- handle
		<-hold
	}
	return TxRecord{Hash: handle}, true, nil
}

func TestSupersededRecordIsDiscarded(t *testing.T) {
	wallet := &scriptedWallet{hashes: []string{"H2", "H3"}}
	releaseH2 := make(chan struct{})
	releaseH3 := make(chan struct{})
	ledger := &lateLedger{
		holds:   map[string]chan struct{}{"H2": releaseH2, "H3": releaseH3},
		waiting: make(chan string, 2),
	}

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())

	controller.Submit(validRequest())
	assert.Equal(t, "H2", <-ledger.waiting)

	controller.Submit(validRequest())
	assert.Equal(t, "H3", <-ledger.waiting)

	// H2's record lands after H3 is already being polled
	close(releaseH2)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{"posting:", "broadcasting:H2", "posting:", "broadcasting:H3"}, rec.names())

	close(releaseH3)
	rec.waitForLen(t, 5)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{"posting:", "broadcasting:H2", "posting:", "broadcasting:H3", "success:H3"}, rec.names())

	record, ok := controller.Record()
	require.True(t, ok)
	assert.Equal(t, "H3", record.Hash)
}

func TestSupersededBroadcastIsDiscarded(t *testing.T) {
	releaseH1 := make(chan struct{})
	wallet := &scriptedWallet{
		hashes:  []string{"H1", "H2"},
		holds:   map[string]chan struct{}{"H1": releaseH1},
		started: make(chan string, 2),
	}
	ledger := &lateLedger{waiting: make(chan string, 2)}

	rec := &recorder{}
	controller := newTestController(wallet, ledger, rec.options())

	controller.Submit(validRequest())
	assert.Equal(t, "H1", <-wallet.started)
	controller.Submit(validRequest())
	rec.waitForLen(t, 4)

	close(releaseH1)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []string{"posting:", "posting:", "broadcasting:H2", "success:H2"}, rec.names())
	handle, _ := controller.Handle()
	assert.Equal(t, "H2", handle)
}

func TestSubmitFromHandler(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{}, NewBroadcastError(Timeout, nil)).Once()
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H2"}, nil).Once()
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H2").Return(TxRecord{Hash: "H2"}, true, nil)

	rec := &recorder{}
	var controller *Controller
	opts := rec.options()
	onError := opts.OnError
	retried := false
	opts.OnError = func(messageOrHandle string, detail any) {
		onError(messageOrHandle, detail)
		if !retried {
			retried = true
			controller.Submit(validRequest())
		}
	}
	controller = newTestController(wallet, ledger, opts)
	controller.Submit(validRequest())

	rec.waitForLen(t, 5)
	assert.Equal(t, []string{"posting:", "error:Timeout", "posting:", "broadcasting:H2", "success:H2"}, rec.names())
}

func TestNilHandlers(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H1").Return(TxRecord{Hash: "H1", Code: 5}, true, nil).Once()

	controller := newTestController(wallet, ledger, Options{})
	controller.Submit(validRequest())
	require.Eventually(t, func() bool {
		return controller.State().Phase == PhaseConfirmed
	}, waitFor, time.Millisecond)
	assert.Equal(t, OutcomeFailure, controller.State().Outcome)
}

func TestNotifyingID(t *testing.T) {
	wallet := &mockWallet{}
	wallet.On("Post", mock.Anything, mock.Anything).Return(BroadcastResult{Hash: "H1"}, nil).Once()
	ledger := &mockLedger{}
	ledger.On("QueryTx", mock.Anything, "H1").Return(TxRecord{}, false, nil)

	var controller *Controller
	ids := make(chan string, 2)
	controller = newTestController(wallet, ledger, Options{
		OnPosting:      func() { ids <- controller.NotifyingID() },
		OnBroadcasting: func(string) { ids <- controller.NotifyingID() },
	})
	defer controller.Close()
	assert.Empty(t, controller.NotifyingID())

	controller.Submit(validRequest())
	id := controller.State().ID
	for i := 0; i < 2; i++ {
		select {
		case got := <-ids:
			assert.Equal(t, id, got)
		case <-time.After(waitFor):
			t.Fatal("notification not delivered")
		}
	}
	require.Eventually(t, func() bool {
		return controller.NotifyingID() == ""
	}, waitFor, time.Millisecond)
}
