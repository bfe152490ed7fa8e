package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FeatureMode selects how the two encoder branches are combined before
// classification.
type FeatureMode int

const (
	// FeatureConcat concatenates both branches ("Lab").
	FeatureConcat FeatureMode = iota
	// FeatureFirst uses the first branch only ("L").
	FeatureFirst
	// FeatureDuplicated concatenates the first branch with itself ("LL").
	FeatureDuplicated
)

// ParseFeatureMode maps the feat_version option onto a FeatureMode.
func ParseFeatureMode(s string) (FeatureMode, error) {
	switch s {
	case "Lab", "":
		return FeatureConcat, nil
	case "L":
		return FeatureFirst, nil
	case "LL":
		return FeatureDuplicated, nil
	default:
		return 0, fmt.Errorf("model: unknown feature mode %q", s)
	}
}

func (m FeatureMode) String() string {
	switch m {
	case FeatureFirst:
		return "L"
	case FeatureDuplicated:
		return "LL"
	default:
		return "Lab"
	}
}

// Dim returns the classifier input width for branch widths a and b.
func (m FeatureMode) Dim(a, b int) int {
	switch m {
	case FeatureFirst:
		return a
	case FeatureDuplicated:
		return 2 * a
	default:
		return a + b
	}
}

// Combine builds the classifier input from the branch features.
func (m FeatureMode) Combine(a, b *mat.Dense) (*mat.Dense, error) {
	switch m {
	case FeatureFirst:
		return a, nil
	case FeatureDuplicated:
		var out mat.Dense
		out.Augment(a, a)
		return &out, nil
	default:
		if b == nil {
			return nil, fmt.Errorf("model: feature mode %s needs a second branch", m)
		}
		ar, _ := a.Dims()
		br, _ := b.Dims()
		if ar != br {
			return nil, fmt.Errorf("model: branch rows differ (%d vs %d)", ar, br)
		}
		var out mat.Dense
		out.Augment(a, b)
		return &out, nil
	}
}
