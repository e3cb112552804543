package store

import (
	"context"
	"io"
	"math"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
)

// ErrNoSnapshot is returned by SnapshotStorage.Load when nothing was stored yet.
var ErrNoSnapshot = eris.New("no snapshot exists")

// SnapshotStorage persists serialized backend snapshots.
type SnapshotStorage interface {
	// Store saves the snapshot, replacing any existing one.
	Store(ctx context.Context, data []byte) error

	// Load retrieves the current snapshot. Returns ErrNoSnapshot if none exists.
	Load(ctx context.Context) ([]byte, error)

	// Exists checks if a snapshot is available.
	Exists(ctx context.Context) bool
}

// SnapshotStorageType defines the type of snapshot storage to use.
type SnapshotStorageType string

const (
	SnapshotStorageNop       SnapshotStorageType = "NOP"
	SnapshotStorageJetStream SnapshotStorageType = "JETSTREAM"
)

// Valid reports whether t names a known storage type.
func (t SnapshotStorageType) Valid() bool {
	return t == SnapshotStorageNop || t == SnapshotStorageJetStream
}

// NopSnapshotStorage is used when snapshots are not needed (e.g., development, testing).
type NopSnapshotStorage struct{}

var _ SnapshotStorage = NopSnapshotStorage{}

func (NopSnapshotStorage) Store(context.Context, []byte) error { return nil }

func (NopSnapshotStorage) Load(context.Context) ([]byte, error) {
	return nil, eris.Wrap(ErrNoSnapshot, "using no-op storage")
}

func (NopSnapshotStorage) Exists(context.Context) bool { return false }

// JetStreamSnapshotStorage stores snapshots as one object in a NATS JetStream object store bucket.
type JetStreamSnapshotStorage struct {
	os         jetstream.ObjectStore
	objectName string
}

var _ SnapshotStorage = (*JetStreamSnapshotStorage)(nil)

// JetStreamSnapshotOptions configures JetStreamSnapshotStorage.
type JetStreamSnapshotOptions struct {
	Bucket     string
	ObjectName string
	// MaxBytes of the bucket. 0 means unlimited.
	MaxBytes uint64
}

// NewJetStreamSnapshotStorage creates the bucket if needed and returns the storage.
func NewJetStreamSnapshotStorage(
	ctx context.Context,
	conn *nats.Conn,
	opts JetStreamSnapshotOptions,
) (*JetStreamSnapshotStorage, error) {
	if conn == nil {
		return nil, eris.New("NATS connection cannot be nil")
	}
	if opts.Bucket == "" {
		return nil, eris.New("bucket cannot be empty")
	}
	if opts.ObjectName == "" {
		return nil, eris.New("object name cannot be empty")
	}
	if opts.MaxBytes > math.MaxInt64 {
		return nil, eris.New("snapshot storage max bytes exceeds maximum int64 value")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create JetStream client")
	}

	cfg := jetstream.ObjectStoreConfig{
		Bucket:   opts.Bucket,
		MaxBytes: int64(opts.MaxBytes),
	}
	os, err := js.CreateObjectStore(ctx, cfg)
	if err != nil {
		if !eris.Is(err, jetstream.ErrBucketExists) {
			return nil, eris.Wrapf(err, "failed to create ObjectStore (bucket=%s)", cfg.Bucket)
		}
		os, err = js.ObjectStore(ctx, cfg.Bucket)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to get existing ObjectStore (bucket=%s)", cfg.Bucket)
		}
	}

	return &JetStreamSnapshotStorage{os: os, objectName: opts.ObjectName}, nil
}

func (j *JetStreamSnapshotStorage) Store(ctx context.Context, data []byte) error {
	if _, err := j.os.PutBytes(ctx, j.objectName, data); err != nil {
		return eris.Wrap(err, "failed to store snapshot in ObjectStore")
	}
	return nil
}

func (j *JetStreamSnapshotStorage) Load(ctx context.Context) ([]byte, error) {
	object, err := j.os.Get(ctx, j.objectName)
	if err != nil {
		if eris.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, eris.Wrap(err, "failed to get snapshot from ObjectStore")
	}
	defer func() {
		_ = object.Close()
	}()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, eris.Wrap(err, "failed to read from object")
	}
	return data, nil
}

func (j *JetStreamSnapshotStorage) Exists(ctx context.Context) bool {
	_, err := j.os.GetInfo(ctx, j.objectName)
	return err == nil
}

// Snapshotter is a backend whose state can be captured and restored.
type Snapshotter interface {
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

var _ Snapshotter = (*MemoryBackend)(nil)

// SaveSnapshot captures the store's backend into storage. The writer lock is held so the snapshot falls between
// transactions.
func (s *Store) SaveSnapshot(ctx context.Context, storage SnapshotStorage) error {
	snap, ok := s.backend.(Snapshotter)
	if !ok {
		return eris.New("backend does not support snapshots")
	}

	s.mu.Lock()
	data, err := snap.Snapshot()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return storage.Store(ctx, data)
}

// RestoreSnapshot loads the latest snapshot from storage into the store's backend. It reports false if no snapshot
// exists.
func (s *Store) RestoreSnapshot(ctx context.Context, storage SnapshotStorage) (bool, error) {
	snap, ok := s.backend.(Snapshotter)
	if !ok {
		return false, eris.New("backend does not support snapshots")
	}

	data, err := storage.Load(ctx)
	if eris.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := snap.Restore(data); err != nil {
		return false, err
	}
	return true, nil
}
