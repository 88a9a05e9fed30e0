// Command tierstore is an operator tool for the tiered-storage plug-in:
// it copies, fetches, and deletes segments against a filesystem or S3
// object store using the same core the host plug-in runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	tierstore "github.com/kk-code-lab/tierstore"
	"github.com/kk-code-lab/tierstore/internal/segment"
	"github.com/kk-code-lab/tierstore/internal/storage"
	"github.com/kk-code-lab/tierstore/internal/storage/filesystem"
	s3backend "github.com/kk-code-lab/tierstore/internal/storage/s3"
)

func main() {
	mode := flag.String("mode", "", "Mode: copy|fetch|fetch-index|delete|manifest")
	dataDir := flag.String("data-dir", "", "Filesystem backend root directory")
	bucket := flag.String("bucket", "", "S3 bucket (enables the S3 backend)")
	region := flag.String("region", "", "S3 region")
	topic := flag.String("topic", "", "Topic name")
	partition := flag.Int("partition", 0, "Partition")
	baseOffset := flag.Int64("base-offset", 0, "Segment base offset")
	segmentID := flag.String("segment-id", "", "Segment UUID (generated for copy when empty)")
	file := flag.String("file", "", "Segment file to copy (copy mode)")
	start := flag.Int64("start", 0, "Fetch start offset")
	end := flag.Int64("end", -1, "Fetch end offset, inclusive (-1 = segment end)")
	indexType := flag.String("index", "OFFSET", "Index type for fetch-index")
	config := flag.String("config", "", "Comma-separated key=value plug-in properties")
	verbose := flag.Bool("verbose", false, "Log at debug level")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "unknown arguments:", flag.Args())
		os.Exit(2)
	}
	if *topic == "" && *mode != "" {
		fmt.Fprintln(os.Stderr, "topic required")
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	backend, err := openBackend(*dataDir, *bucket, *region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseProps(*config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	manager, err := tierstore.New(tierstore.Options{
		Backend: backend,
		Config:  cfg,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	meta, err := segmentMeta(*topic, *partition, *baseOffset, *segmentID, *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "segment error: %v\n", err)
		os.Exit(1)
	}

	if err := run(manager, *mode, meta, *file, *start, *end, *indexType); err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", *mode, err)
		os.Exit(1)
	}
}

func run(manager *tierstore.Manager, mode string, meta segment.Meta, file string, start, end int64, indexName string) error {
	ctx := context.Background()
	switch mode {
	case "copy":
		if file == "" {
			return fmt.Errorf("copy requires -file")
		}
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		if err := manager.CopyLogSegment(ctx, meta, f, info.Size(), nil); err != nil {
			return err
		}
		fmt.Printf("copied %s as %s-%d/%d-%s\n", file, meta.Topic, meta.Partition, meta.BaseOffset, meta.ID)
		return nil
	case "fetch":
		var body io.ReadCloser
		var err error
		if end >= 0 {
			body, err = manager.FetchLogSegmentRange(ctx, meta, start, end)
		} else {
			body, err = manager.FetchLogSegment(ctx, meta, start)
		}
		if err != nil {
			return err
		}
		defer body.Close()
		_, err = io.Copy(os.Stdout, body)
		return err
	case "fetch-index":
		indexType, err := segment.ParseIndexType(indexName)
		if err != nil {
			return err
		}
		body, err := manager.FetchIndex(ctx, meta, indexType)
		if err != nil {
			return err
		}
		if body == nil {
			fmt.Fprintln(os.Stderr, "index not present")
			return nil
		}
		defer body.Close()
		_, err = io.Copy(os.Stdout, body)
		return err
	case "delete":
		if err := manager.DeleteLogSegmentData(ctx, meta); err != nil {
			return err
		}
		fmt.Printf("deleted %s-%d/%d-%s\n", meta.Topic, meta.Partition, meta.BaseOffset, meta.ID)
		return nil
	case "manifest":
		return printManifest(ctx, manager, meta)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func printManifest(ctx context.Context, manager *tierstore.Manager, meta segment.Meta) error {
	raw, err := manager.ManifestJSON(ctx, meta)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(raw, '\n'))
	return err
}

func openBackend(dataDir, bucket, region string) (storage.Backend, error) {
	switch {
	case bucket != "":
		return s3backend.New(context.Background(), bucket, region)
	case dataDir != "":
		return filesystem.New(dataDir)
	default:
		return nil, fmt.Errorf("one of -data-dir or -bucket is required")
	}
}

func parseProps(raw string) (tierstore.Config, error) {
	props := make(map[string]string)
	if raw != "" {
		for _, pair := range strings.Split(raw, ",") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return tierstore.Config{}, fmt.Errorf("malformed property %q", pair)
			}
			props[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return tierstore.ParseConfig(props)
}

func segmentMeta(topic string, partition int, baseOffset int64, id, mode string) (segment.Meta, error) {
	meta := segment.Meta{
		Topic:      topic,
		Partition:  int32(partition),
		BaseOffset: baseOffset,
	}
	if id == "" {
		if mode != "copy" {
			return segment.Meta{}, fmt.Errorf("segment-id required for %s", mode)
		}
		meta.ID = uuid.New()
		return meta, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return segment.Meta{}, fmt.Errorf("parse segment id: %w", err)
	}
	meta.ID = parsed
	return meta, nil
}
