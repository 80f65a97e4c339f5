package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/mqtt"
)

const (
	commandQoS     = 1
	commandTimeout = 30 * time.Second
)

// Controller is the part of devicesync.Synchronizer that commands drive.
type Controller interface {
	RefreshNow(ctx context.Context) error
	ToggleDevice(ctx context.Context, id string, on bool) error
	ExecuteScene(ctx context.Context, id string) error
	ExecuteRoutine(ctx context.Context, id string) error
}

// Subscriber is the slice of *mqtt.Client Commands uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
}

// Commands turns messages on {prefix}/command/# into synchronizer calls.
//
// Parsing happens on the MQTT delivery goroutine; the call itself runs on
// its own goroutine so a slow backend never stalls message delivery.
type Commands struct {
	ctrl   Controller
	sub    Subscriber
	logger Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommands returns a stopped command listener.
func NewCommands(ctrl Controller, sub Subscriber, logger Logger) *Commands {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Commands{ctrl: ctrl, sub: sub, logger: logger}
}

// Start subscribes to the command topics. Commands in flight are bound
// to ctx.
func (c *Commands) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrRunning
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.sub.Subscribe(c.sub.Topics().AllCommands(), commandQoS, c.handle); err != nil {
		c.mu.Lock()
		c.cancel()
		c.cancel = nil
		c.mu.Unlock()
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Stop unsubscribes, cancels running commands and waits for them.
func (c *Commands) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	if err := c.sub.Unsubscribe(c.sub.Topics().AllCommands()); err != nil {
		c.logger.Warn("unsubscribing from commands failed", "error", err)
	}
	cancel()
	c.wg.Wait()
}

type togglePayload struct {
	IsOn *bool `json:"isOn"`
}

// handle is the MQTT message handler.
func (c *Commands) handle(topic string, payload []byte) error {
	action, target, ok := c.sub.Topics().ParseCommand(topic)
	if !ok {
		return fmt.Errorf("unrecognised command topic %q", topic)
	}

	var run func(ctx context.Context) error
	switch action {
	case mqtt.CommandRefresh:
		run = c.ctrl.RefreshNow
	case mqtt.CommandToggle:
		var body togglePayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return fmt.Errorf("decoding toggle for %s: %w", target, err)
		}
		if body.IsOn == nil {
			return fmt.Errorf("toggle for %s: isOn is required", target)
		}
		on := *body.IsOn
		run = func(ctx context.Context) error { return c.ctrl.ToggleDevice(ctx, target, on) }
	case mqtt.CommandScene:
		run = func(ctx context.Context) error { return c.ctrl.ExecuteScene(ctx, target) }
	case mqtt.CommandRoutine:
		run = func(ctx context.Context) error { return c.ctrl.ExecuteRoutine(ctx, target) }
	}

	c.mu.Lock()
	base := c.ctx
	stopped := c.cancel == nil
	if !stopped {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if stopped {
		return nil
	}

	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(base, commandTimeout)
		defer cancel()

		if err := run(ctx); err != nil {
			c.logger.Warn("mqtt command failed", "action", action, "target", target, "error", err)
			return
		}
		c.logger.Debug("mqtt command applied", "action", action, "target", target)
	}()
	return nil
}
