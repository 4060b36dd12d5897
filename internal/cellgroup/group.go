// Package cellgroup ties a shared simulation state to the mechanism
// instances placed on it.
package cellgroup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/logger"
	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/metrics"
	"github.com/samcharles93/mechpack/internal/shared"
)

var ErrNotFound = errors.New("cellgroup: no such mechanism instance")

// Placement asks for one mechanism to be instantiated on the group.
type Placement struct {
	Mechanism string
	Layout    mechanism.Layout
	Overrides mechanism.Overrides
}

// Group owns a shared state and every instance built on it. Instances are
// kept in id order.
type Group struct {
	mu        sync.RWMutex
	state     *shared.State
	cat       *catalogue.Catalogue
	instances []*mechanism.Instance
	nextID    uint32
	metrics   *metrics.Metrics
	log       logger.Logger
}

type Option func(*Group)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Group) { g.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(g *Group) { g.log = l }
}

// New allocates the shared state of a group on dev.
func New(dev device.Device, cfg shared.Config, cat *catalogue.Catalogue, opts ...Option) (*Group, error) {
	st, err := shared.New(dev, cfg)
	if err != nil {
		return nil, err
	}
	g := &Group{state: st, cat: cat, log: logger.Nop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Group) State() *shared.State { return g.state }

func (g *Group) Catalogue() *catalogue.Catalogue { return g.cat }

func (g *Group) Metrics() *metrics.Metrics { return g.metrics }

func (g *Group) AddIon(name string, charge int, cfg shared.IonConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.AddIon(name, charge, cfg)
}

// Add instantiates a placement under the next free id.
func (g *Group) Add(ctx context.Context, p Placement) (*mechanism.Instance, error) {
	typ, err := g.cat.Get(p.Mechanism)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	m, err := mechanism.Instantiate(logger.WithContext(ctx, g.log), g.state, id, typ, p.Overrides, p.Layout)
	g.metrics.ObserveInstantiate(p.Mechanism, err)
	if err != nil {
		g.log.Warn("instantiate failed", "mechanism", p.Mechanism, "id", id, "error", err)
		return nil, err
	}
	g.nextID++
	g.instances = append(g.instances, m)
	g.log.Info("instantiated mechanism",
		"mechanism", p.Mechanism, "id", id, "width", m.Width(), "width_padded", m.WidthPadded())
	return m, nil
}

// Instances returns the instances in id order.
func (g *Group) Instances() []*mechanism.Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.instances)
}

func (g *Group) Instance(id uint32) (*mechanism.Instance, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lookup(id)
}

func (g *Group) lookup(id uint32) (*mechanism.Instance, error) {
	i, found := slices.BinarySearchFunc(g.instances, id, func(m *mechanism.Instance, id uint32) int {
		switch {
		case m.ID() < id:
			return -1
		case m.ID() > id:
			return 1
		}
		return 0
	})
	if !found {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return g.instances[i], nil
}

// FieldValues reads a field of instance id while no initialisation or
// write is in flight.
func (g *Group) FieldValues(id uint32, name string) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	return m.FieldValues(name)
}

// SetField writes a field of instance id.
func (g *Group) SetField(id uint32, name string, values []float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, err := g.lookup(id)
	if err != nil {
		return err
	}
	return m.SetField(name, values)
}

// View calls fn with the instances in id order. Buffer contents do not
// change until fn returns.
func (g *Group) View(fn func([]*mechanism.Instance) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(g.instances)
}

// Update calls fn with exclusive access to every instance.
func (g *Group) Update(fn func([]*mechanism.Instance) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.instances)
}

// Initialize sets ion concentrations to their initial values and runs
// every instance's initialisation.
func (g *Group) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.state.IonsInitConcentration(); err != nil {
		return err
	}
	return g.initializeLocked(ctx)
}

// Reset restores the shared state and re-initialises every instance.
func (g *Group) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.state.Reset(); err != nil {
		return err
	}
	return g.initializeLocked(ctx)
}

func (g *Group) initializeLocked(ctx context.Context) error {
	start := time.Now()
	for _, m := range g.instances {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Initialize(ctx); err != nil {
			return fmt.Errorf("cellgroup: initialise %s (%d): %w", m.Name(), m.ID(), err)
		}
	}
	g.metrics.ObserveInitialize(time.Since(start))
	g.log.Debug("initialised cell group", "instances", len(g.instances), "elapsed", time.Since(start))
	return nil
}

// Close destroys every instance and then the shared state.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for _, m := range g.instances {
		errs = append(errs, m.Close())
	}
	g.metrics.ObserveClose(len(g.instances))
	g.instances = nil
	errs = append(errs, g.state.Close())
	return errors.Join(errs...)
}
