package rpcclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
)

// Client is a JSON-RPC client for a Stellar RPC server. It replaces the
// underlying connection after a failed call, so it tolerates server restarts.
type Client struct {
	url     string
	timeout time.Duration

	mu  sync.Mutex
	cli *jrpc2.Client
}

// New returns a client for url. timeout bounds every HTTP request; zero means no bound.
func New(url string, timeout time.Duration) *Client {
	c := &Client{url: url, timeout: timeout}
	c.refreshClient(nil)
	return c
}

// refreshClient replaces the jrpc2 client, unless stale no longer is the current one.
func (c *Client) refreshClient(stale *jrpc2.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != stale {
		return
	}
	if c.cli != nil {
		c.cli.Close()
	}
	ch := jhttp.NewChannel(c.url, &jhttp.ChannelOptions{
		Client: &http.Client{Timeout: c.timeout},
	})
	c.cli = jrpc2.NewClient(ch, nil)
}

func (c *Client) current() *jrpc2.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli
}

func (c *Client) CallResult(ctx context.Context, method string, params, result any) error {
	cli := c.current()
	err := cli.CallResult(ctx, method, params, result)
	if err != nil {
		// a failed call can leave the client unusable, see https://github.com/creachadair/jrpc2/issues/118
		c.refreshClient(cli)
	}
	return err
}

func (c *Client) Close() error {
	return c.current().Close()
}

func (c *Client) GetTransaction(ctx context.Context, hash string) (GetTransactionResponse, error) {
	var result GetTransactionResponse
	err := c.CallResult(ctx, "getTransaction", GetTransactionRequest{Hash: hash}, &result)
	return result, err
}

func (c *Client) SendTransaction(ctx context.Context, envelopeXDR string) (SendTransactionResponse, error) {
	var result SendTransactionResponse
	err := c.CallResult(ctx, "sendTransaction", SendTransactionRequest{Transaction: envelopeXDR}, &result)
	return result, err
}

func (c *Client) GetLedgerEntries(ctx context.Context, keys ...string) (GetLedgerEntriesResponse, error) {
	var result GetLedgerEntriesResponse
	err := c.CallResult(ctx, "getLedgerEntries", GetLedgerEntriesRequest{Keys: keys}, &result)
	return result, err
}

func (c *Client) GetNetwork(ctx context.Context) (GetNetworkResponse, error) {
	var result GetNetworkResponse
	err := c.CallResult(ctx, "getNetwork", nil, &result)
	return result, err
}

func (c *Client) GetHealth(ctx context.Context) (HealthCheckResult, error) {
	var result HealthCheckResult
	err := c.CallResult(ctx, "getHealth", nil, &result)
	return result, err
}
