package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/schema"
)

// DefaultTimeout bounds a single refresh execution.
const DefaultTimeout = 15 * time.Second

type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

type (
	result struct {
		token string
		err   error
	}

	// Stats is a point in time view of a coordinator.
	Stats struct {
		Refreshes int
		State     State
		Waiting   int
	}

	// Coordinator runs at most one credential refresh at a time. Callers arriving while a
	// refresh is in flight wait for its outcome and are resolved in arrival order.
	Coordinator struct {
		vault     *vault.Vault
		refresher Refresher
		timeout   time.Duration
		redirect  string
		onFailure func(ctx context.Context, err error)
		logger    glog.Logger

		// persist orders vault writes of a settling refresh against Reset; mu guards the rest
		persist    sync.Mutex
		mu         sync.Mutex
		state      State
		waiters    []chan result
		generation uint64
		refreshes  int
		settled    uint64
		latest     string
	}

	Option func(c *Coordinator)
)

// WithTimeout bounds each refresh; the refresh does not inherit the first caller's cancellation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRedirect sets the login location attached to failed refresh errors.
func WithRedirect(redirect string) Option {
	return func(c *Coordinator) {
		c.redirect = redirect
	}
}

// WithFailureHandler is called once per failed refresh, after every waiter has been rejected.
func WithFailureHandler(fn func(ctx context.Context, err error)) Option {
	return func(c *Coordinator) {
		c.onFailure = fn
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = glog.Ensure(logger)
	}
}

func New(v *vault.Vault, refresher Refresher, options ...Option) *Coordinator {
	ret := &Coordinator{
		vault:     v,
		refresher: refresher,
		timeout:   DefaultTimeout,
		redirect:  schema.DefaultLoginPath,
		logger:    glog.Nop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Acquire returns a fresh token for a caller whose request was rejected while carrying staleToken.
// A token already refreshed by someone else is returned directly; otherwise the caller joins the
// queue and, if no refresh is running, starts one.
func (c *Coordinator) Acquire(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()
	token := c.vault.Token(ctx)
	c.mu.Lock()
	if (token == "" || token == staleToken) && c.settled != settled {
		// a refresh settled while the vault was being read
		token = c.latest
	}
	if token != "" && token != staleToken {
		c.mu.Unlock()
		return token, nil
	}
	waiter := make(chan result, 1)
	c.waiters = append(c.waiters, waiter)
	if c.state == StateIdle {
		c.state = StateRefreshing
		c.refreshes++
		go c.refresh(ctx, c.generation)
	}
	c.mu.Unlock()

	select {
	case res := <-waiter:
		return res.token, res.err
	case <-ctx.Done():
		c.remove(waiter)
		return "", ctx.Err()
	}
}

func (c *Coordinator) refresh(parent context.Context, generation uint64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()
	current := c.vault.Read(ctx)
	record, err := c.refresher.Refresh(ctx, current)
	if err == nil && !record.HasToken() {
		err = errors.New("refresh returned no token")
	}
	c.settle(ctx, generation, record, err)
}

func (c *Coordinator) settle(ctx context.Context, generation uint64, record *vault.Record, err error) {
	c.persist.Lock()
	if !c.current(generation) {
		c.persist.Unlock()
		c.logger.Debug("refresh result discarded after reset")
		return
	}
	var res result
	if err == nil {
		if werr := c.vault.Write(ctx, record); werr != nil {
			c.logger.Warn("failed to persist refreshed credential", "error", werr)
		}
		res.token = record.Token
	} else {
		if cerr := c.vault.Clear(ctx); cerr != nil {
			c.logger.Warn("failed to clear credential after refresh failure", "error", cerr)
		}
		res.err = schema.NewAuthFailed(err, c.redirect)
	}
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle
	c.settled++
	c.latest = res.token
	c.mu.Unlock()
	c.persist.Unlock()

	for _, waiter := range waiters {
		waiter <- res
	}
	if err != nil {
		c.logger.Warn("credential refresh failed", "error", err, "waiters", len(waiters))
		if c.onFailure != nil {
			c.onFailure(ctx, res.err)
		}
		return
	}
	c.logger.Debug("credential refreshed", "waiters", len(waiters))
}

func (c *Coordinator) current(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation == c.generation
}

func (c *Coordinator) remove(waiter chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, candidate := range c.waiters {
		if candidate == waiter {
			c.waiters = append(c.waiters[:i:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Reset ends the session: queued callers are rejected and a refresh still in flight can no
// longer write its result back.
func (c *Coordinator) Reset(ctx context.Context) {
	c.persist.Lock()
	c.mu.Lock()
	c.generation++
	waiters := c.waiters
	c.waiters = nil
	c.state = StateIdle
	c.latest = ""
	c.mu.Unlock()
	c.persist.Unlock()
	err := schema.NewLoggedOut()
	for _, waiter := range waiters {
		waiter <- result{err: err}
	}
	c.logger.WithContext(ctx).Debug("refresh coordinator reset", "rejected", len(waiters))
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Refreshes: c.refreshes, State: c.state, Waiting: len(c.waiters)}
}
