package runtime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Optimizer applies one update from the store's gradients to its parameters.
type Optimizer interface {
	Name() string
	Update(store *ParamStore)
}

// OptimizerCtor builds an optimizer with the given learning rate.
type OptimizerCtor func(lr float64) Optimizer

var optimizers = map[string]OptimizerCtor{}

// RegisterOptimizer adds an optimizer constructor under the given name.
func RegisterOptimizer(name string, ctor OptimizerCtor) {
	optimizers[name] = ctor
}

// NewOptimizer returns the optimizer registered under the given name.
func NewOptimizer(name string, lr float64) (Optimizer, error) {
	ctor, ok := optimizers[name]
	if !ok {
		return nil, fmt.Errorf("runtime: unknown optimizer %q", name)
	}
	return ctor(lr), nil
}

func init() {
	RegisterOptimizer("sgd", func(lr float64) Optimizer { return &SGD{lr: lr, momentum: 0.9} })
	RegisterOptimizer("adam", func(lr float64) Optimizer { return NewAdam(lr) })
}

// SGD is stochastic gradient descent with momentum.
type SGD struct {
	lr       float64
	momentum float64
	velocity map[string][]float64
}

func (s *SGD) Name() string { return "sgd" }

func (s *SGD) Update(store *ParamStore) {
	if s.velocity == nil {
		s.velocity = make(map[string][]float64)
	}
	for _, name := range store.Names() {
		p := store.Param(name).RawMatrix().Data
		g := store.Grad(name).RawMatrix().Data
		v, ok := s.velocity[name]
		if !ok {
			v = make([]float64, len(p))
			s.velocity[name] = v
		}
		for i := range v {
			v[i] = s.momentum*v[i] - s.lr*g[i]
		}
		floats.Add(p, v)
	}
}

// Adam is the Adam optimizer with the usual default moment decays.
type Adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	step    int
	m       map[string][]float64
	v       map[string][]float64
}

// NewAdam creates an Adam optimizer with beta1=0.9, beta2=0.999, eps=1e-8.
func NewAdam(lr float64) *Adam {
	return &Adam{
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		m:       make(map[string][]float64),
		v:       make(map[string][]float64),
	}
}

func (a *Adam) Name() string { return "adam" }

func (a *Adam) Update(store *ParamStore) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, name := range store.Names() {
		p := store.Param(name).RawMatrix().Data
		g := store.Grad(name).RawMatrix().Data
		m, ok := a.m[name]
		if !ok {
			m = make([]float64, len(p))
			a.m[name] = m
			a.v[name] = make([]float64, len(p))
		}
		v := a.v[name]
		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*g[i]*g[i]
			mHat := m[i] / c1
			vHat := v[i] / c2
			p[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
}
