// context.go - Graph-Kontext und Ausfuehrung ueber gorgonia
//
// Dieses Modul enthaelt:
// - Context: Expression-Graph mit Modus, Zufallsquelle und Parameterknoten
// - Input/Noise/Read/AfterRun: Eingaben, pro Lauf gezogenes Rauschen,
//   Ergebnisse und Nachlauf-Hooks (Laufstatistiken)
// - Machine: kompilierte Tape-Machine, optional mit Gradienten
package ml

import (
	"errors"
	"fmt"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type noise struct {
	node  *gorgonia.Node
	shape []int
	draw  DrawFunc
}

// Context builds one expression graph. Parameters are bound by value, so
// several graphs (training, sampling) can share the same weights.
type Context struct {
	g    *gorgonia.ExprGraph
	mode Mode
	rng  *rand.Rand

	params     map[string]*gorgonia.Node
	learnables gorgonia.Nodes
	noise      []noise
	hooks      []func() error
	names      map[string]int
}

// NewContext creates a context. rng drives every Noise node and may be nil
// when the graph draws no randomness.
func NewContext(mode Mode, rng *rand.Rand) *Context {
	return &Context{
		g:      gorgonia.NewGraph(),
		mode:   mode,
		rng:    rng,
		params: make(map[string]*gorgonia.Node),
		names:  make(map[string]int),
	}
}

// Graph returns the underlying expression graph.
func (c *Context) Graph() *gorgonia.ExprGraph {
	return c.g
}

// Mode returns the evaluation mode.
func (c *Context) Mode() Mode {
	return c.mode
}

// unique suffixes repeated node names so debug output stays readable.
func (c *Context) unique(name string) string {
	n := c.names[name]
	c.names[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, n)
}

// Param binds value as a leaf node. Repeated calls with the same name
// return the same node. Trainable parameters are differentiated by Compile.
func (c *Context) Param(name string, value *tensor.Dense, trainable bool) *gorgonia.Node {
	if n, ok := c.params[name]; ok {
		return n
	}

	n := gorgonia.NewTensor(c.g, Float, value.Dims(),
		gorgonia.WithShape(value.Shape()...),
		gorgonia.WithName(name),
		gorgonia.WithValue(value),
	)
	c.params[name] = n
	if trainable {
		c.learnables = append(c.learnables, n)
	}
	return n
}

// Learnables returns the trainable parameter nodes in binding order.
func (c *Context) Learnables() gorgonia.Nodes {
	return c.learnables
}

// Input creates a leaf whose value is supplied with gorgonia.Let before
// each run.
func (c *Context) Input(name string, shape ...int) *gorgonia.Node {
	return gorgonia.NewTensor(c.g, Float, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(c.unique(name)))
}

// Constant binds a fixed tensor that is never differentiated.
func (c *Context) Constant(name string, value *tensor.Dense) *gorgonia.Node {
	return gorgonia.NewTensor(c.g, Float, value.Dims(),
		gorgonia.WithShape(value.Shape()...),
		gorgonia.WithName(c.unique(name)),
		gorgonia.WithValue(value),
	)
}

// Noise creates an input that is redrawn from the context's rng before
// every run.
func (c *Context) Noise(name string, draw DrawFunc, shape ...int) *gorgonia.Node {
	if c.rng == nil {
		panic("ml: context has no random source")
	}
	n := c.Input(name, shape...)
	c.noise = append(c.noise, noise{node: n, shape: shape, draw: draw})
	return n
}

// Read registers n as an output. The returned value is filled by each run.
func (c *Context) Read(n *gorgonia.Node) *gorgonia.Value {
	var v gorgonia.Value
	gorgonia.Read(n, &v)
	return &v
}

// AfterRun registers fn to run after every successful forward pass.
func (c *Context) AfterRun(fn func() error) {
	c.hooks = append(c.hooks, fn)
}

// Machine executes a compiled context.
type Machine struct {
	ctx        *Context
	vm         gorgonia.VM
	learnables gorgonia.Nodes
}

// Compile turns the graph into a tape machine. With a non-nil loss the
// gradients of every learnable are added to the graph and kept after each
// run for a solver step.
func (c *Context) Compile(loss *gorgonia.Node) (*Machine, error) {
	if loss == nil {
		return &Machine{ctx: c, vm: gorgonia.NewTapeMachine(c.g)}, nil
	}

	if !loss.IsScalar() {
		return nil, fmt.Errorf("loss must be a scalar, got shape %v", loss.Shape())
	}
	if len(c.learnables) == 0 {
		return nil, errors.New("loss does not depend on any parameter")
	}
	if _, err := gorgonia.Grad(loss, c.learnables...); err != nil {
		return nil, fmt.Errorf("symbolic gradient: %w", err)
	}

	return &Machine{
		ctx:        c,
		vm:         gorgonia.NewTapeMachine(c.g, gorgonia.BindDualValues(c.learnables...)),
		learnables: c.learnables,
	}, nil
}

// Run draws fresh noise, evaluates the graph and runs the AfterRun hooks.
// Call Reset before the next Run.
func (m *Machine) Run() error {
	for _, n := range m.ctx.noise {
		if err := gorgonia.Let(n.node, n.draw(m.ctx.rng, n.shape...)); err != nil {
			return fmt.Errorf("bind %s: %w", n.node.Name(), err)
		}
	}

	if err := m.vm.RunAll(); err != nil {
		return err
	}

	for _, fn := range m.ctx.hooks {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Gradients pairs every learnable with its gradient from the last run.
func (m *Machine) Gradients() []gorgonia.ValueGrad {
	return gorgonia.NodesToValueGrads(m.learnables)
}

// Reset prepares the machine for the next run.
func (m *Machine) Reset() {
	m.vm.Reset()
}

func (m *Machine) Close() error {
	return m.vm.Close()
}
