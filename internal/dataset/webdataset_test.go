package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestReadShardPairsEntries(t *testing.T) {
	buf := buildShard([]filePair{
		{key: "000001", imageExt: ".jpg", image: []byte("jpeg"), label: 3},
		{key: "000002", imageExt: ".png", image: []byte("png"), label: 7},
	})

	dir := t.TempDir()
	shard := filepath.Join(dir, "shard-000000.tar")
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	samples, err := ReadShard(context.Background(), shard)
	if err != nil {
		t.Fatalf("ReadShard returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Key != "000001" || samples[0].Label != 3 {
		t.Fatalf("unexpected first sample %+v", samples[0])
	}
	if samples[1].Key != "000002" || samples[1].Label != 7 {
		t.Fatalf("unexpected second sample %+v", samples[1])
	}
}

func TestReadShardLabelBeforeImage(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(tw, "000001.cls", []byte("4\n"))
	addTarEntry(tw, "000002.cls", []byte("5"))
	addTarEntry(tw, "000002.png", []byte("png"))
	addTarEntry(tw, "000001.png", []byte("png"))
	tw.Close()

	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	samples, err := ReadShard(context.Background(), shard)
	if err != nil {
		t.Fatalf("ReadShard returned error: %v", err)
	}
	if len(samples) != 2 || samples[0].Key != "000002" || samples[1].Label != 4 {
		t.Fatalf("unexpected samples %+v", samples)
	}
}

func TestReadShardCancelled(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	buf := buildShard([]filePair{{key: "000001", imageExt: ".png", image: []byte("png"), label: 1}})
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ReadShard(ctx, shard); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReadShardIncomplete(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(tw, "000001.png", []byte("png"))
	tw.Close()

	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	_, err := ReadShard(context.Background(), shard)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestReadShardBadLabel(t *testing.T) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(tw, "000001.cls", []byte("cat"))
	tw.Close()

	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
	if _, err := ReadShard(context.Background(), shard); err == nil {
		t.Fatal("expected label parse error")
	}
}

func buildShard(pairs []filePair) *bytes.Buffer {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, pair := range pairs {
		addTarEntry(tw, pair.key+pair.imageExt, pair.image)
		addTarEntry(tw, pair.key+".cls", []byte(strconv.Itoa(pair.label)))
	}
	tw.Close()
	return buf
}

type filePair struct {
	key      string
	imageExt string
	image    []byte
	label    int
}

func addTarEntry(tw *tar.Writer, name string, data []byte) {
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		panic(err)
	}
	if _, err := tw.Write(data); err != nil {
		panic(err)
	}
}
