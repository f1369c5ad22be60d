package cli

import (
	"context"
	"fmt"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/s3fetch"
	"github.com/eunmann/cdxsum/pkg/source"
)

// resolveInputs turns command arguments into streams. No arguments means
// stdin. s3:// prefixes are listed, and objects are staged to disk first
// when a stage directory is configured.
func (a *app) resolveInputs(ctx context.Context, paths []string, opts source.Options) ([]source.Input, error) {
	if len(paths) == 0 {
		paths = []string{source.StdinName}
	}

	var (
		objects source.ObjectStreamer
		failed  map[int]error
	)
	if anyS3(paths) {
		client, err := s3fetch.NewClient(ctx, s3fetch.Options{
			Region:    a.cfg.S3.Region,
			Endpoint:  a.cfg.S3.Endpoint,
			PathStyle: a.cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}

		var expanded []string
		for _, p := range paths {
			if !s3fetch.IsURI(p) {
				expanded = append(expanded, p)
				continue
			}
			uris, err := client.Expand(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("expand %s: %w", p, err)
			}
			if len(uris) == 0 {
				log := logctx.FromContext(ctx)
				log.Warn().Str("prefix", p).Msg("no objects under prefix")
			}
			expanded = append(expanded, uris...)
		}
		paths = expanded

		if a.cfg.S3.StageDir != "" {
			dl := client.Downloader(s3fetch.DefaultDownloaderConfig())
			staged, err := s3fetch.Stage(ctx, dl, paths, s3fetch.StageConfig{
				Dir:         a.cfg.S3.StageDir,
				Concurrency: a.cfg.S3.Concurrency,
			})
			if err != nil {
				return nil, err
			}
			paths, failed = staged.Paths, staged.Failed
		} else {
			objects = client
		}
	}

	inputs := source.NewOpener(opts, objects).WithStdin(a.stdin).Inputs(paths)
	for i, err := range failed {
		inputs[i] = source.Failed(paths[i], err)
	}
	return inputs, nil
}

func anyS3(paths []string) bool {
	for _, p := range paths {
		if s3fetch.IsURI(p) {
			return true
		}
	}
	return false
}
