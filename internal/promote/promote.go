// Package promote copies landing and staging objects from a development
// S3 environment to the production prefix.
package promote

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unosaa/datapipe/internal/errs"
)

// copyConcurrency bounds the number of in-flight server-side copies.
const copyConcurrency = 8

// promotedFolders are the folders carried over during promotion. The
// transformed folder is rebuilt by SQLMesh on the target side, so it is
// not copied.
var promotedFolders = []string{"landing", "staging"}

// Store is the subset of the object store promotion needs.
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// Promoter copies pipeline data from one S3 environment to another.
type Promoter struct {
	store  Store
	srcEnv string
	dstEnv string
	dryRun bool
	log    *zap.Logger
}

// New returns a Promoter copying from srcEnv to dstEnv. In dry-run mode
// it only reports what would be copied.
func New(store Store, srcEnv, dstEnv string, dryRun bool, log *zap.Logger) *Promoter {
	return &Promoter{store: store, srcEnv: srcEnv, dstEnv: dstEnv, dryRun: dryRun, log: log}
}

// Run copies every object under the landing and staging folders of the
// source environment to the same folder under the destination. It
// returns the number of objects considered.
func (p *Promoter) Run(ctx context.Context) (int, error) {
	var keys []string
	for _, folder := range promotedFolders {
		prefix := p.srcEnv + "/" + folder + "/"
		batch, err := p.store.List(ctx, prefix)
		if err != nil {
			return 0, &errs.RemoteUnavailable{Op: "list " + prefix, Err: err}
		}
		keys = append(keys, batch...)
	}
	if len(keys) == 0 {
		p.log.Info("nothing to promote",
			zap.String("source", p.srcEnv),
			zap.String("destination", p.dstEnv))
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(copyConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			dst := p.dstEnv + strings.TrimPrefix(key, p.srcEnv)
			if p.dryRun {
				p.log.Info("would promote",
					zap.String("from", key),
					zap.String("to", dst))
				return nil
			}
			if err := p.store.Copy(ctx, key, dst); err != nil {
				return &errs.RemoteUnavailable{Op: "copy " + key, Err: err}
			}
			p.log.Debug("promoted",
				zap.String("from", key),
				zap.String("to", dst))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	p.log.Info("promotion complete",
		zap.Int("objects", len(keys)),
		zap.String("source", p.srcEnv),
		zap.String("destination", p.dstEnv),
		zap.Bool("dry_run", p.dryRun))
	return len(keys), nil
}
