// params.go - Benannte Parametermenge
//
// Dieses Modul enthaelt:
// - Param: Tensor mit Namen und Trainierbarkeits-Flag
// - Params: geordnete Zuordnung Name -> Param (Gewichte und Laufstatistiken)
// - Count: Gesamtzahl der trainierbaren Elemente
package nn

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/ml"
)

// Param is a named tensor owned by a model. The tensor is updated in place
// by the solver, so every graph that binds it sees the current value.
type Param struct {
	Name      string
	Value     *tensor.Dense
	Trainable bool
}

// Node binds the parameter into ctx's graph.
func (p *Param) Node(ctx *ml.Context) *gorgonia.Node {
	return ctx.Param(p.Name, p.Value, p.Trainable)
}

// Floats returns the backing values.
func (p *Param) Floats() []float64 {
	return ml.Floats(p.Value)
}

// Params holds every tensor a model owns, in registration order. The order
// is stable so checkpoints and solver state line up across runs.
type Params struct {
	om *orderedmap.OrderedMap[string, *Param]
}

// NewParams creates an empty parameter set.
func NewParams() *Params {
	return &Params{om: orderedmap.New[string, *Param]()}
}

// Add registers value under name. Names must be unique.
func (p *Params) Add(name string, value *tensor.Dense, trainable bool) *Param {
	if _, ok := p.om.Get(name); ok {
		panic(fmt.Errorf("nn: duplicate parameter %q", name))
	}
	param := &Param{Name: name, Value: value, Trainable: trainable}
	p.om.Set(name, param)
	return param
}

// Get looks up a parameter by name.
func (p *Params) Get(name string) (*Param, bool) {
	return p.om.Get(name)
}

// Len returns the number of registered tensors.
func (p *Params) Len() int {
	return p.om.Len()
}

// Each calls fn for every parameter in registration order.
func (p *Params) Each(fn func(*Param)) {
	for pair := p.om.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Value)
	}
}

// Names returns all names in registration order.
func (p *Params) Names() []string {
	names := make([]string, 0, p.om.Len())
	p.Each(func(param *Param) {
		names = append(names, param.Name)
	})
	return names
}

// Count returns the number of scalar values in trainable tensors.
func (p *Params) Count() int {
	var n int
	p.Each(func(param *Param) {
		if param.Trainable {
			n += param.Value.Size()
		}
	})
	return n
}
