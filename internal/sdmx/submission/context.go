package submission

import (
	"context"

	"go.uber.org/zap"

	"github.com/sdmxkit/sdmxreg/internal/sdmx/urn"
	"github.com/sdmxkit/sdmxreg/internal/store"
)

// Action is the submission action requested for an artefact.
type Action string

const (
	ActionAppend  Action = "Append"
	ActionReplace Action = "Replace"
	ActionDelete  Action = "Delete"
	ActionInfo    Action = "Information"
)

// Context is the request-scoped state one submission is processed under.
// Processing is single-threaded: one inbound submission runs start-to-finish
// within one request before the next begins.
type Context struct {
	Store    store.Store
	Resolver *urn.Resolver
	Logger   *zap.Logger

	// Action is the submission-wide default action from the header.
	Action Action

	// Test marks a dry-run submission whose savepoint is rolled back after
	// the response is rendered.
	Test      bool
	savepoint store.Savepoint

	results map[ResultKey]*Result
	order   []ResultKey
}

// NewContext creates a submission context over the given store.
func NewContext(st store.Store, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Store:    st,
		Resolver: urn.NewResolver(st),
		Logger:   logger,
		Action:   ActionAppend,
		results:  make(map[ResultKey]*Result),
	}
}

// Result returns the submission result for the key, registering an empty
// Success result on first use.
func (c *Context) Result(key ResultKey) *Result {
	if r, ok := c.results[key]; ok {
		return r
	}
	r := &Result{Key: key}
	c.results[key] = r
	c.order = append(c.order, key)
	return r
}

// HeaderResult returns the synthetic header result.
func (c *Context) HeaderResult() *Result {
	return c.Result(HeaderKey)
}

// Results returns all results in first-touch order.
func (c *Context) Results() []*Result {
	out := make([]*Result, len(c.order))
	for i, key := range c.order {
		out[i] = c.results[key]
	}
	return out
}

// Failed reports the aggregate submission outcome: Failure exactly when the
// synthetic header result escalated to Failure. Individual artefact
// failures do not abort the submission.
func (c *Context) Failed() bool {
	if r, ok := c.results[HeaderKey]; ok {
		return r.Status == Failure
	}
	return false
}

// OpenSavepoint opens the submission savepoint. Called by header processing
// immediately after the submission record is created.
func (c *Context) OpenSavepoint(ctx context.Context) error {
	sp, err := c.Store.Savepoint(ctx)
	if err != nil {
		return err
	}
	c.savepoint = sp
	return nil
}

// Close finishes the submission: test submissions roll the savepoint back
// so they leave no residual data, real ones release it.
func (c *Context) Close(ctx context.Context) error {
	if c.savepoint == nil {
		return nil
	}
	sp := c.savepoint
	c.savepoint = nil
	if c.Test {
		c.Logger.Info("rolling back test submission")
		return sp.Rollback(ctx)
	}
	return sp.Release(ctx)
}
