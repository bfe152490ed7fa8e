package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// Split names a dataset partition.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
)

// DiscoverShards returns absolute paths to shard TAR files beneath root.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// SplitDir returns the directory holding a split's shards. The "original"
// oracle reads clean data; any other oracle reads the corrupted copy of the
// dataset, with "scale" stored as "upsample".
func SplitDir(dataFolder, oracle string, split Split) string {
	switch oracle {
	case "", "original":
		return filepath.Join(dataFolder, string(split))
	case "scale":
		oracle = "upsample"
	}
	return filepath.Join(dataFolder, "corrupted", oracle, string(split))
}
