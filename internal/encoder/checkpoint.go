package encoder

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"cmc-probe/internal/model"
)

// checkpointFile is the on-disk form of a pretrained encoder.
type checkpointFile struct {
	Model  string
	Epoch  int
	InputA int
	InputB int
	Params map[string]model.Tensor
}

// Save writes the encoder parameters and the pretraining epoch to path.
func (e *Encoder) Save(path string, epoch int) error {
	ckpt := checkpointFile{
		Model:  e.arch.Name,
		Epoch:  epoch,
		InputA: e.inputs[0],
		InputB: e.inputs[1],
		Params: make(map[string]model.Tensor),
	}
	for br, layers := range e.branches {
		for i, l := range layers {
			ckpt.Params[paramKey(br, i, "weight")] = model.TensorOf(l.weight)
			ckpt.Params[paramKey(br, i, "bias")] = model.Tensor{Rows: 1, Cols: len(l.bias), Data: append([]float64(nil), l.bias...)}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("encoder: create dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("encoder: create %s: %w", tmp, err)
	}
	if err := gob.NewEncoder(f).Encode(&ckpt); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoder: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("encoder: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("encoder: rename: %w", err)
	}
	e.epoch = epoch
	return nil
}

// Load reads an encoder checkpoint written by Save.
func Load(path string) (*Encoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("encoder: open checkpoint: %w", err)
	}
	defer f.Close()

	var ckpt checkpointFile
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("encoder: decode %s: %w", path, err)
	}
	arch, err := ArchFor(ckpt.Model)
	if err != nil {
		return nil, err
	}

	e := &Encoder{arch: arch, inputs: [2]int{ckpt.InputA, ckpt.InputB}, epoch: ckpt.Epoch}
	for br := range e.branches {
		in := e.inputs[br]
		for i, out := range arch.Widths {
			wt, ok := ckpt.Params[paramKey(br, i, "weight")]
			if !ok {
				return nil, fmt.Errorf("encoder: checkpoint missing %s", paramKey(br, i, "weight"))
			}
			if wt.Rows != in || wt.Cols != out {
				return nil, fmt.Errorf("encoder: %s is %dx%d, want %dx%d",
					paramKey(br, i, "weight"), wt.Rows, wt.Cols, in, out)
			}
			w, err := wt.Dense()
			if err != nil {
				return nil, err
			}
			bt, ok := ckpt.Params[paramKey(br, i, "bias")]
			if !ok || len(bt.Data) != out {
				return nil, fmt.Errorf("encoder: checkpoint missing or malformed %s", paramKey(br, i, "bias"))
			}
			e.branches[br] = append(e.branches[br], layer{weight: w, bias: append([]float64(nil), bt.Data...)})
			in = out
		}
	}
	return e, nil
}

func paramKey(branch, layer int, name string) string {
	return fmt.Sprintf("%c.%d.%s", 'a'+rune(branch), layer, name)
}
