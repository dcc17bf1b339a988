package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rocketbitz/cci-go/cci"
)

const defaultDialTimeout = 5 * time.Second

var (
	initOnce sync.Once
	initErr  error
)

// ensureInitialized calls cci.Init exactly once per process. The caller
// is responsible for importing a transport package (e.g. transport/udp)
// for its registration side effect before dialing or listening.
func ensureInitialized() error {
	initOnce.Do(func() {
		initErr = cci.Init(cci.ABIVersion, 0)
	})
	return initErr
}

// Dial opens an endpoint on cfg.Device and initiates a connection to
// cfg.ServerURI, blocking until the CONNECT event resolves or cfg.Timeout
// elapses.
func Dial(cfg Config) (*Client, error) {
	if cfg.ServerURI == "" {
		return nil, fmt.Errorf("client: Dial requires Config.ServerURI")
	}
	if err := ensureInitialized(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	ep, _, err := cci.CreateEndpoint(cfg.Device, 0)
	if err != nil {
		return nil, err
	}

	c := newClient(cfg, ep, nil, true)
	c.startDispatch()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	op := newOperation(OperationConnect)
	if err := cci.Connect(ep, cfg.ServerURI, cfg.Payload, cfg.Attribute, op, cfg.Flags, timeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	res, err := op.await(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if res.err != nil {
		_ = c.Close()
		return nil, res.err
	}
	c.conn = res.conn
	return c, nil
}
