package s3fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/logging"
)

// FileDownloader downloads one object to a local path.
type FileDownloader interface {
	DownloadToFile(ctx context.Context, bucket, key, destPath string) (*DownloadResult, error)
}

// StageConfig configures staging of S3 inputs to local disk.
type StageConfig struct {
	// Dir receives the downloaded files.
	Dir string
	// Concurrency is the number of objects downloaded at once (default 4).
	Concurrency int
}

// Staged is the outcome of Stage.
type Staged struct {
	// Paths holds the input list with S3 objects replaced by their local
	// copies. A failed object keeps its s3:// path.
	Paths []string
	// Failed maps the position of each object that could not be
	// downloaded to its error.
	Failed map[int]error
}

// Stage downloads every s3:// path in paths into cfg.Dir and returns the
// list with those paths replaced by local ones, preserving order. Non-S3
// paths pass through unchanged. Local names are prefixed with the input
// position so objects with the same base name do not collide.
//
// A failed download does not stop the others; it is logged and recorded
// in Staged.Failed. Only invalid paths and an unusable stage directory
// return an error.
func Stage(ctx context.Context, dl FileDownloader, paths []string, cfg StageConfig) (*Staged, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}

	log := logctx.FromContext(ctx)
	out := make([]string, len(paths))
	var staged atomic.Int64

	type job struct {
		idx                    int
		src, bucket, key, dest string
	}
	var jobs []job
	for i, p := range paths {
		if !IsURI(p) {
			out[i] = p
			continue
		}
		bucket, key, err := ParseURI(p)
		if err != nil {
			return nil, err
		}
		if IsPrefix(key) {
			return nil, fmt.Errorf("%w: %q is a prefix, expand it first", ErrInvalidURI, p)
		}
		dest := filepath.Join(cfg.Dir, strconv.Itoa(i)+"-"+filepath.Base(key))
		jobs = append(jobs, job{idx: i, src: p, bucket: bucket, key: key, dest: dest})
	}

	var mu sync.Mutex
	failed := make(map[int]error)

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			res, err := dl.DownloadToFile(ctx, j.bucket, j.key, j.dest)
			if err != nil {
				err = fmt.Errorf("stage %s: %w", j.src, err)
				log.Error().Err(err).Str("source", j.src).Msg("object not staged")
				mu.Lock()
				failed[j.idx] = err
				mu.Unlock()
				out[j.idx] = j.src
				return nil
			}
			out[j.idx] = j.dest
			staged.Add(res.BytesDownloaded)
			logging.FileCreated(log, "stage", res.Duration).
				Str("source", j.src).
				Str("path", j.dest).
				Bytes("size", res.BytesDownloaded).
				LogDebug("object staged")
			return nil
		})
	}

	_ = g.Wait()
	log.Info().
		Int64("bytes", staged.Load()).
		Int("objects", len(jobs)-len(failed)).
		Int("failed", len(failed)).
		Str("dir", cfg.Dir).
		Msg("S3 inputs staged")
	return &Staged{Paths: out, Failed: failed}, nil
}
