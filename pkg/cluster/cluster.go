// Package cluster owns the collection of backplanes that make up a
// deployment and runs the bus-tick simulation loop over them.
package cluster

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/neurofab/z1cluster/pkg/backplane"
	"github.com/neurofab/z1cluster/pkg/node"
)

const joinTimeout = 1 * time.Second

// Cluster owns 1..N backplanes and, at most, one active simulation thread.
type Cluster struct {
	mu         sync.RWMutex
	backplanes map[string]*backplane.Backplane

	simMu      sync.Mutex
	running    bool
	timestepUs int64
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an empty cluster.
func New() *Cluster {
	return &Cluster{
		backplanes: make(map[string]*backplane.Backplane),
	}
}

// AddBackplane registers bp under its own name.
func (c *Cluster) AddBackplane(bp *backplane.Backplane) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.backplanes[bp.Name]; exists {
		return ErrDuplicateBackplane
	}
	c.backplanes[bp.Name] = bp
	return nil
}

// GetBackplane returns the named backplane.
func (c *Cluster) GetBackplane(name string) (*backplane.Backplane, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bp, ok := c.backplanes[name]
	if !ok {
		return nil, ErrBackplaneNotFound
	}
	return bp, nil
}

// BackplaneNames returns every registered backplane name, sorted.
func (c *Cluster) BackplaneNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.backplanes))
	for name := range c.backplanes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetNode resolves a (backplane, node id) pair.
func (c *Cluster) GetNode(backplaneName string, nodeID int) (*node.Node, error) {
	bp, err := c.GetBackplane(backplaneName)
	if err != nil {
		return nil, err
	}
	return bp.GetNode(nodeID)
}

// StartSimulation starts the bus-tick loop at the given timestep. It is
// idempotent: calling it while already running is a no-op.
func (c *Cluster) StartSimulation(timestepUs int64) {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancel = cancel
	c.done = make(chan struct{})
	c.timestepUs = timestepUs
	c.running = true

	go c.simLoop(ctx, c.done, time.Duration(timestepUs)*time.Microsecond)
}

// simLoop ticks every backplane's bus once per timestep until cancelled.
func (c *Cluster) simLoop(ctx context.Context, done chan struct{}, timestep time.Duration) {
	defer close(done)

	ticker := time.NewTicker(timestep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.mu.RLock()
			bps := make([]*backplane.Backplane, 0, len(c.backplanes))
			for _, bp := range c.backplanes {
				bps = append(bps, bp)
			}
			c.mu.RUnlock()

			for _, bp := range bps {
				bp.Tick(now)
			}
		}
	}
}

// StopSimulation stops the bus-tick loop, joining the goroutine with a
// bounded timeout. It is a no-op if no simulation is running.
func (c *Cluster) StopSimulation() {
	c.simMu.Lock()
	if !c.running {
		c.simMu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.running = false
	c.simMu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Println("cluster: simulation thread did not stop within timeout")
	}
}

// Running reports whether the simulation loop is active.
func (c *Cluster) Running() bool {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	return c.running
}
