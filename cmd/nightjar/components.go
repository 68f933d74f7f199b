package main

import (
	"context"
	"log/slog"

	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/core/services/agent"
	"github.com/lcalzada-xor/nightjar/internal/core/services/events"
	"github.com/lcalzada-xor/nightjar/internal/core/services/plugins"
)

// recoveryComponent seeds the SessionStore from a prior persisted session on
// Init and runs the checkpoint loop (one write per closed epoch) as its
// background task.
type recoveryComponent struct {
	recovery *recoveryService
}

func (c *recoveryComponent) Name() string           { return "recovery" }
func (c *recoveryComponent) Dependencies() []string  { return nil }
func (c *recoveryComponent) Init(ctx context.Context) error {
	c.recovery.seed(ctx)
	return nil
}
func (c *recoveryComponent) Start(ctx context.Context) error {
	go c.recovery.checkpointLoop(ctx)
	return nil
}
func (c *recoveryComponent) Stop(ctx context.Context) error {
	return c.recovery.store.Close()
}

// pluginComponent discovers and initializes plugins on Init, and tears them
// down on Stop. It has no background task of its own.
type pluginComponent struct {
	host *plugins.Host
	dir  string
	log  *slog.Logger
}

func (c *pluginComponent) Name() string          { return "plugins" }
func (c *pluginComponent) Dependencies() []string { return nil }
func (c *pluginComponent) Init(ctx context.Context) error {
	if err := c.host.Discover(c.dir); err != nil {
		c.log.Warn("plugin discovery failed", "dir", c.dir, "error", err)
	}
	c.host.InitializeAll()
	return nil
}
func (c *pluginComponent) Start(ctx context.Context) error { return nil }
func (c *pluginComponent) Stop(ctx context.Context) error {
	c.host.ShutdownAll()
	return nil
}

// eventsComponent runs the EventDemultiplexer for the lifetime of the
// process, forwarding a terminal error onto errChan.
type eventsComponent struct {
	demux   *events.Demultiplexer
	errChan chan<- error
	log     *slog.Logger
}

func (c *eventsComponent) Name() string          { return "events" }
func (c *eventsComponent) Dependencies() []string { return []string{"plugins"} }
func (c *eventsComponent) Init(ctx context.Context) error { return nil }
func (c *eventsComponent) Start(ctx context.Context) error {
	go func() {
		if err := c.demux.Run(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("event demultiplexer stopped", "error", err)
			c.errChan <- err
		}
	}()
	return nil
}
func (c *eventsComponent) Stop(ctx context.Context) error { return nil }

// agentComponent runs the auto-mode control loop for the lifetime of the
// process, forwarding a terminal error onto errChan.
type agentComponent struct {
	agent   *agent.Agent
	errChan chan<- error
	log     *slog.Logger
}

func (c *agentComponent) Name() string          { return "agent" }
func (c *agentComponent) Dependencies() []string { return []string{"recovery", "events", "plugins"} }
func (c *agentComponent) Init(ctx context.Context) error { return nil }
func (c *agentComponent) Start(ctx context.Context) error {
	go func() {
		if err := c.agent.RunAuto(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("agent loop stopped", "error", err)
			c.errChan <- err
		}
	}()
	return nil
}
func (c *agentComponent) Stop(ctx context.Context) error { return nil }

var _ ports.Component = (*recoveryComponent)(nil)
var _ ports.Component = (*pluginComponent)(nil)
var _ ports.Component = (*eventsComponent)(nil)
var _ ports.Component = (*agentComponent)(nil)
