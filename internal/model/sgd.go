package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
}

// SGD implements stochastic gradient descent with momentum and L2 weight
// decay:
//
//	d = grad + weightDecay*param
//	velocity = momentum*velocity + d   (velocity = d on the first step)
//	param -= lr*velocity
type SGD struct {
	params     []*Param
	cfg        SGDConfig
	velocities []*mat.Dense
}

// NewSGD creates an optimizer over params.
func NewSGD(params []*Param, cfg SGDConfig) *SGD {
	return &SGD{
		params:     params,
		cfg:        cfg,
		velocities: make([]*mat.Dense, len(params)),
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	for _, p := range s.params {
		p.Grad.Zero()
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() {
	for i, p := range s.params {
		var d mat.Dense
		d.CloneFrom(p.Grad)
		if s.cfg.WeightDecay != 0 {
			var decay mat.Dense
			decay.Scale(s.cfg.WeightDecay, p.Value)
			d.Add(&d, &decay)
		}
		if s.cfg.Momentum != 0 {
			v := s.velocities[i]
			if v == nil {
				v = mat.DenseCopyOf(&d)
				s.velocities[i] = v
			} else {
				v.Scale(s.cfg.Momentum, v)
				v.Add(v, &d)
			}
			d.CloneFrom(v)
		}
		d.Scale(s.cfg.LR, &d)
		p.Value.Sub(p.Value, &d)
	}
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.cfg.LR = lr
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	return s.cfg.LR
}

// StateDict exports the velocity buffers as "velocity.<index>".
// Parameters that have not been stepped yet have no entry.
func (s *SGD) StateDict() map[string]Tensor {
	state := make(map[string]Tensor)
	for i, v := range s.velocities {
		if v == nil {
			continue
		}
		state[fmt.Sprintf("velocity.%d", i)] = TensorOf(v)
	}
	return state
}

// LoadStateDict restores velocity buffers saved by StateDict.
func (s *SGD) LoadStateDict(state map[string]Tensor) error {
	velocities := make([]*mat.Dense, len(s.params))
	for i, p := range s.params {
		t, ok := state[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		r, c := p.Value.Dims()
		if t.Rows != r || t.Cols != c {
			return fmt.Errorf("model: velocity shape mismatch for parameter %d: expected %dx%d, got %dx%d",
				i, r, c, t.Rows, t.Cols)
		}
		d, err := t.Dense()
		if err != nil {
			return err
		}
		velocities[i] = d
	}
	s.velocities = velocities
	return nil
}
