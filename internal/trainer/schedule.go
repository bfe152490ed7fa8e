package trainer

import "math"

// StepSchedule decays the learning rate by Rate at every boundary epoch
// that has been reached.
type StepSchedule struct {
	Base       float64
	Rate       float64
	Boundaries []int
}

// LR returns the learning rate for a 1-based epoch.
func (s StepSchedule) LR(epoch int) float64 {
	steps := 0
	for _, b := range s.Boundaries {
		if epoch >= b {
			steps++
		}
	}
	return s.Base * math.Pow(s.Rate, float64(steps))
}
