// Package remotestorage builds the storage backend selected by
// configuration. The choice is made once per process.
package remotestorage

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"collabtext/config"
	"collabtext/scene"
	"collabtext/storage"
	"collabtext/storage/boltstore"
	"collabtext/storage/httpstore"
	"collabtext/storage/memstore"
	"collabtext/storage/miniofiles"
	"collabtext/storage/pgstore"
	"collabtext/storage/redisstore"
)

// Remote is the selected backend together with the resources it holds.
type Remote struct {
	storage.Backend

	Kind    string
	closers []io.Closer
}

// Close releases connections held by the backend.
func (r *Remote) Close() error {
	var result *multierror.Error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// New builds the backend named by cfg.StorageType. For the http backend,
// binary files go to MinIO when an endpoint is configured and are otherwise
// reported as unsupported. The other backends store files alongside rooms.
func New(ctx context.Context, cfg config.Config, reconcile scene.Reconciler, logger hclog.Logger) (*Remote, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if reconcile == nil {
		reconcile = scene.Reconcile
	}
	opts := []storage.Option{
		storage.WithReconciler(reconcile),
		storage.WithLogger(logger.Named("storage").With("backend", cfg.StorageType)),
	}
	r := &Remote{Kind: cfg.StorageType}

	if cfg.StorageType != config.StorageHTTP {
		rooms, files, closers, err := OpenStores(ctx, cfg.StorageType, cfg)
		if err != nil {
			return nil, err
		}
		r.closers = closers
		r.Backend = storage.NewSyncer(rooms, append(opts, storage.WithFiles(files))...)
		return r, nil
	}

	if cfg.HTTPURL == "" {
		return nil, fmt.Errorf("no remote storage URL configured")
	}
	rooms, err := httpstore.New(cfg.HTTPURL, cfg.HTTPRetry, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MinIOEndpoint != "" {
		files, err := miniofiles.New(ctx, miniofiles.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Secure:    cfg.MinIOSecure,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithFiles(files))
	}
	r.Backend = storage.NewSyncer(rooms, opts...)
	return r, nil
}

// OpenStores opens the room and file stores of a database-backed storage
// kind: redis, postgres, bolt or memory. The returned closers release the
// connections.
func OpenStores(ctx context.Context, kind string, cfg config.Config) (storage.RoomStore, storage.FileStore, []io.Closer, error) {
	switch kind {
	case config.StorageRedis:
		store, err := redisstore.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not connect to Redis: %w", err)
		}
		return store, store, []io.Closer{store}, nil
	case config.StoragePostgres:
		store, err := pgstore.Dial(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, []io.Closer{store}, nil
	case config.StorageBolt:
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, []io.Closer{store}, nil
	case config.StorageMemory:
		store := memstore.New()
		return store, store, nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage type %q", kind)
	}
}
