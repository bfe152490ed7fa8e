package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Sample is one encoded image paired with its class label.
type Sample struct {
	Key   string
	Image []byte
	Label int
}

// ErrIncomplete reports image or label entries left without a partner.
var ErrIncomplete = errors.New("webdataset: incomplete samples")

// ReadShard reads every sample of the shard at path. Image and label
// entries are paired by key in whatever order they appear; samples are
// returned in the order their pair completed.
func ReadShard(ctx context.Context, path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	images := make(map[string][]byte)
	labels := make(map[string]int)
	var samples []Sample

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar %s: %w", path, err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}

		name := filepath.Base(hdr.Name)
		ext := strings.ToLower(filepath.Ext(name))
		key := strings.TrimSuffix(name, filepath.Ext(name))
		switch ext {
		case ".jpg", ".jpeg", ".png":
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read image %s: %w", name, err)
			}
			images[key] = data
		case ".cls":
			label, err := readLabel(tr)
			if err != nil {
				return nil, fmt.Errorf("label %s: %w", name, err)
			}
			labels[key] = label
		default:
			continue
		}

		image, hasImage := images[key]
		label, hasLabel := labels[key]
		if hasImage && hasLabel && len(image) > 0 {
			samples = append(samples, Sample{Key: key, Image: image, Label: label})
			delete(images, key)
			delete(labels, key)
		}
	}

	if left := len(images) + len(labels); left > 0 {
		return nil, fmt.Errorf("%w: %d unpaired entries in %s", ErrIncomplete, left, path)
	}
	return samples, nil
}

func readLabel(r io.Reader) (int, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(payload)))
}
