package encoder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedModel is returned for model names with no known architecture.
var ErrUnsupportedModel = errors.New("encoder: model not supported")

// Arch describes the per-branch layer widths of an encoder family.
type Arch struct {
	Name   string
	Widths []int
}

var (
	alexnetWidths = []int{48, 128, 192, 192, 128, 2048, 2048}
	resnetWidths  = []int{16, 32, 64, 128, 256, 512}
)

// ArchFor maps a model name (alexnet, resnet50v1, resnet50v2, resnet50v3,
// resnet18_ttt, ...) onto its architecture.
func ArchFor(model string) (Arch, error) {
	switch {
	case strings.HasPrefix(model, "alexnet"):
		return Arch{Name: model, Widths: append([]int(nil), alexnetWidths...)}, nil
	case strings.HasPrefix(model, "resnet"):
		mult := 0
		switch {
		case strings.HasSuffix(model, "v1"):
			mult = 1
		case strings.HasSuffix(model, "v2"):
			mult = 2
		case strings.HasSuffix(model, "v3"):
			mult = 4
		case strings.Contains(model, "ttt"):
			mult = 1
		}
		if mult == 0 {
			return Arch{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
		}
		widths := make([]int, len(resnetWidths))
		for i, w := range resnetWidths {
			widths[i] = w * mult
		}
		return Arch{Name: model, Widths: widths}, nil
	default:
		return Arch{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
}

// Depth returns the number of layers per branch.
func (a Arch) Depth() int {
	return len(a.Widths)
}

// Width returns the per-branch feature width at the 1-based layer index.
func (a Arch) Width(layer int) (int, error) {
	if layer < 1 || layer > len(a.Widths) {
		return 0, fmt.Errorf("encoder: layer %d outside [1,%d] for %s", layer, len(a.Widths), a.Name)
	}
	return a.Widths[layer-1], nil
}
