// Package integration wires the device client, the polling coordinator and
// the entities together for one configured nobreak, and exposes the result
// as MCP tools.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jamesprial/nobreak-mcp/internal/config"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/entity"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
	"github.com/jamesprial/nobreak-mcp/internal/safety"
)

// ErrSetup wraps every failure returned by Setup.
var ErrSetup = errors.New("integration: setup failed")

// Option customises Setup.
type Option func(*options)

type options struct {
	client    nobreak.Client
	observers []coordinator.Observer
	coordOpts []coordinator.Option
}

// WithObserver subscribes o to the coordinator after the entities.
func WithObserver(o coordinator.Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observers = append(opts.observers, o)
		}
	}
}

// WithClient replaces the HTTP client built from the configuration.
func WithClient(c nobreak.Client) Option {
	return func(opts *options) { opts.client = c }
}

// WithCoordinatorOptions appends options after the ones derived from config.
func WithCoordinatorOptions(co ...coordinator.Option) Option {
	return func(opts *options) { opts.coordOpts = append(opts.coordOpts, co...) }
}

// Hub is one loaded nobreak integration.
type Hub struct {
	Client      nobreak.Client
	Coordinator *coordinator.Coordinator
	Registry    entity.Registry

	entities []entity.Entity
	unsubs   []func()
	once     sync.Once
}

// Setup validates cfg, starts polling and registers the entities. If the
// first refresh fails, nothing is registered or subscribed and the polling
// loop is not left running.
func Setup(ctx context.Context, cfg *config.Config, registry entity.Registry, opts ...Option) (*Hub, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrSetup)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	filter := safety.NewFilter(cfg.Entities.Allowlist, cfg.Entities.Denylist)
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		hc, err := nobreak.NewHTTPClient(cfg.Nobreak)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetup, err)
		}
		client = hc
	}

	coordOpts := append([]coordinator.Option{
		coordinator.WithInterval(cfg.Nobreak.PollInterval()),
		coordinator.WithTimeout(cfg.Nobreak.Timeout()),
	}, o.coordOpts...)
	coord := coordinator.New(client, coordOpts...)

	if err := coord.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	h := &Hub{Client: client, Coordinator: coord, Registry: registry}

	first, _ := coord.LastUpdate()
	for _, e := range entity.Build(client) {
		if !filter.IsAllowed(e.UniqueID()) {
			continue
		}
		h.entities = append(h.entities, e)
	}

	// Entities see the initial snapshot before they are registered.
	for _, e := range h.entities {
		e.OnUpdate(first)
		_, unsub := coord.Subscribe(e)
		h.unsubs = append(h.unsubs, unsub)
	}
	if err := registry.Add(h.entities...); err != nil {
		h.unsubscribeAll()
		coord.Stop()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	for _, obs := range o.observers {
		obs.OnUpdate(first)
		_, unsub := coord.Subscribe(obs)
		h.unsubs = append(h.unsubs, unsub)
	}

	log.Printf("nobreak: polling %s every %s (%d entities)", endpointOf(client), coord.Interval(), len(h.entities))
	return h, nil
}

// Unload unsubscribes every observer, removes the entities from the registry
// and stops polling. It is safe to call more than once.
func (h *Hub) Unload() {
	h.once.Do(func() {
		h.unsubscribeAll()
		ids := make([]string, len(h.entities))
		for i, e := range h.entities {
			ids[i] = e.UniqueID()
		}
		h.Registry.Remove(ids...)
		h.Coordinator.Stop()
	})
}

func (h *Hub) unsubscribeAll() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

// States returns the registered state of every entity of kind (all if empty).
func (h *Hub) States(kind entity.Kind) []entity.State {
	return h.Registry.States(kind)
}

// Switch returns the registered switch with the given unique ID. Switches
// excluded by the entity filter are never registered.
func (h *Hub) Switch(id string) (*entity.Switch, bool) {
	e, ok := h.Registry.Get(id)
	if !ok {
		return nil, false
	}
	sw, ok := e.(*entity.Switch)
	return sw, ok
}

func endpointOf(c nobreak.Client) string {
	if hc, ok := c.(*nobreak.HTTPClient); ok {
		return hc.Endpoint().BaseURL
	}
	return fmt.Sprintf("%T", c)
}
