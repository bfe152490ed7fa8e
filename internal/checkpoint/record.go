// Package checkpoint persists linear-probe training state.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"cmc-probe/internal/model"
)

// ErrCheckpointUnavailable is returned when a checkpoint is missing or
// cannot be decoded.
var ErrCheckpointUnavailable = errors.New("checkpoint unavailable")

// Record is the single checkpoint shape written by both retention policies.
type Record struct {
	Epoch        int
	Classifier   map[string]model.Tensor
	Optimizer    map[string]model.Tensor
	BestAccuracy float64
	BestEpoch    int
	Options      map[string]string
	RunID        string
	SavedAt      time.Time
}

// Store persists Records under string keys.
type Store interface {
	Save(key string, rec *Record) error
	Load(key string) (*Record, error)
	Close() error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys() ([]string, error)
}

// BestKey names the best-so-far checkpoint for a model and layer.
func BestKey(modelName string, layer int) string {
	return fmt.Sprintf("%s_layer%d.ckpt", modelName, layer)
}

// EpochKey names the periodic checkpoint for an epoch.
func EpochKey(epoch int) string {
	return fmt.Sprintf("ckpt_epoch_%d.ckpt", epoch)
}

func encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(key string, data []byte) (*Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCheckpointUnavailable, key, err)
	}
	return &rec, nil
}
