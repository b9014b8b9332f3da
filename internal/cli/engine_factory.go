package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	psylens "github.com/lys5588/NormCode-Psylens-sub002"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/console"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/filesource"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/memory"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/process"
	redisadapter "github.com/lys5588/NormCode-Psylens-sub002/pkg/adapters/redis"
	"github.com/lys5588/NormCode-Psylens-sub002/pkg/domain"
)

// buildEngine assembles an engine from CLI flags: snapshot store,
// performer routes and runtime tuning. The returned cleanup releases
// any store client and is safe to call once.
func buildEngine(ctx context.Context, opts RunOptions, logger *slog.Logger, hooks ...domain.LifecycleHooks) (*psylens.Engine, func(), error) {
	cleanup := func() {}

	engineOpts := []psylens.Option{
		psylens.WithLogger(logger),
		psylens.WithPerformer(buildPerformer(opts)),
	}
	for _, h := range hooks {
		engineOpts = append(engineOpts, psylens.WithLifecycleHooks(h))
	}
	if opts.Workers > 0 {
		engineOpts = append(engineOpts, psylens.WithWorkers(opts.Workers))
	}
	if opts.LoopCeiling > 0 {
		engineOpts = append(engineOpts, psylens.WithLoopCeiling(opts.LoopCeiling))
	}

	switch opts.Store {
	case "":
	case "memory":
		engineOpts = append(engineOpts, psylens.WithSnapshotStore(memory.NewStore()))
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: opts.RedisAddr})
		store := redisadapter.NewFromClient(client)
		engineOpts = append(engineOpts,
			psylens.WithSnapshotStore(store),
			psylens.WithLocker(redisadapter.NewLocker(client, "psylens:lock:")),
		)
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("close redis store", "err", err)
			}
		}
	default:
		return nil, nil, errors.Newf("unknown store %q (want memory or redis)", opts.Store)
	}

	engine, err := psylens.Open(ctx, opts.Source, engineOpts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

// buildPerformer wires the paradigm routes the flags enable. The model
// route stays empty on purpose: model handlers are an embedding concern
// (pkg/registry), not something a flag can supply.
func buildPerformer(opts RunOptions) psylens.RoutePerformer {
	root := planRoot(opts.Source)
	route := psylens.RoutePerformer{
		File: filesource.New(root),
	}
	if len(opts.ScriptAllow) > 0 {
		route.Script = process.New(opts.ScriptAllow, process.WithBaseDir(root))
	}
	if opts.Interactive {
		// Prompts go to stderr so stdout stays clean for the report.
		route.Input = console.New(os.Stdin, os.Stderr)
	}
	return route
}

// planRoot is the directory file paradigms and relative script paths
// resolve against: the plan directory itself, or the plan file's parent.
func planRoot(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "."
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return abs
	}
	return filepath.Dir(abs)
}
