// Package stub provides an in-process chain.Client for tests and dev mode.
package stub

import (
	"context"
	"errors"
	"sync"

	"artist-shares-engine/internal/chain"
)

// ErrNoContract is returned for reads against a contract the stub does not
// know about.
var ErrNoContract = errors.New("stub: unknown contract")

// Client implements chain.Client backed by in-memory fixtures. Live events
// are delivered through EmitTrade/EmitCurveEvent; historical events and
// curve state are set directly on the exported maps before use.
type Client struct {
	mu sync.Mutex

	History map[string][]chain.TradeEvent // keyed by contract address
	States  map[string]*chain.CurveState  // keyed by contract address

	// ReadErr, when set, makes every ReadCurveState call fail with it.
	ReadErr error
	// SubscribeErr, when set, makes every subscription attempt fail.
	SubscribeErr error

	tradeSubs map[string][]chan chain.TradeEvent
	curveSubs map[string][]chan chain.CurveEvent
}

// NewClient creates an empty stub chain client.
func NewClient() *Client {
	return &Client{
		History:   make(map[string][]chain.TradeEvent),
		States:    make(map[string]*chain.CurveState),
		tradeSubs: make(map[string][]chan chain.TradeEvent),
		curveSubs: make(map[string][]chan chain.CurveEvent),
	}
}

// SubscribeTrades opens a buffered live trade event channel for a contract.
func (c *Client) SubscribeTrades(ctx context.Context, contractAddress string) (<-chan chain.TradeEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	ch := make(chan chain.TradeEvent, 64)
	c.tradeSubs[contractAddress] = append(c.tradeSubs[contractAddress], ch)

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.tradeSubs[contractAddress] {
			if sub == ch {
				c.tradeSubs[contractAddress] = append(c.tradeSubs[contractAddress][:i], c.tradeSubs[contractAddress][i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// SubscribeCurveEvents opens a buffered live curve event channel.
func (c *Client) SubscribeCurveEvents(ctx context.Context, contractAddress string) (<-chan chain.CurveEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	ch := make(chan chain.CurveEvent, 64)
	c.curveSubs[contractAddress] = append(c.curveSubs[contractAddress], ch)

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.curveSubs[contractAddress] {
			if sub == ch {
				c.curveSubs[contractAddress] = append(c.curveSubs[contractAddress][:i], c.curveSubs[contractAddress][i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// HistoricalTrades returns the fixture history for a contract.
func (c *Client) HistoricalTrades(_ context.Context, contractAddress string) ([]chain.TradeEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]chain.TradeEvent, len(c.History[contractAddress]))
	copy(events, c.History[contractAddress])
	return events, nil
}

// ReadCurveState returns the fixture state for a contract.
func (c *Client) ReadCurveState(ctx context.Context, contractAddress string) (*chain.CurveState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ReadErr != nil {
		return nil, c.ReadErr
	}

	state, ok := c.States[contractAddress]
	if !ok {
		return nil, ErrNoContract
	}
	cp := *state
	return &cp, nil
}

// EmitTrade delivers a live trade event to every subscriber of its contract.
func (c *Client) EmitTrade(ev chain.TradeEvent) {
	c.mu.Lock()
	subs := append([]chan chain.TradeEvent(nil), c.tradeSubs[ev.ContractAddress]...)
	c.mu.Unlock()

	for _, ch := range subs {
		ch <- ev
	}
}

// EmitCurveEvent delivers a live curve event to every subscriber.
func (c *Client) EmitCurveEvent(ev chain.CurveEvent) {
	c.mu.Lock()
	subs := append([]chan chain.CurveEvent(nil), c.curveSubs[ev.ContractAddress]...)
	c.mu.Unlock()

	for _, ch := range subs {
		ch <- ev
	}
}

var _ chain.Client = (*Client)(nil)
