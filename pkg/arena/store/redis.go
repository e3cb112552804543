package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Backend = (*RedisBackend)(nil)

// RedisBackend stores each table as one redis hash and all sequences in a single hash.
//
//	key:   "<prefix>:TABLE:<table>"   field: row key   value: JSON row
//	key:   "<prefix>:SEQUENCES"       field: name      value: last id handed out
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	tracer trace.Tracer
}

func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: prefix,
		tracer: otel.Tracer("arena.store.redis"),
	}
}

func (r *RedisBackend) tableKey(table string) string {
	return fmt.Sprintf("%s:TABLE:%s", r.prefix, table)
}

func (r *RedisBackend) sequencesKey() string {
	return r.prefix + ":SEQUENCES"
}

func (r *RedisBackend) Get(ctx context.Context, table, key string) ([]byte, bool, error) {
	bz, err := r.client.HGet(ctx, r.tableKey(table), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "")
	}
	return bz, true, nil
}

func (r *RedisBackend) Scan(ctx context.Context, table string) ([]Row, error) {
	all, err := r.client.HGetAll(ctx, r.tableKey(table)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	rows := make([]Row, 0, len(all))
	for key, value := range all {
		rows = append(rows, Row{Key: key, Value: []byte(value)})
	}
	sortRows(rows)
	return rows, nil
}

func (r *RedisBackend) Sequence(ctx context.Context, name string) (uint64, error) {
	raw, err := r.client.HGet(ctx, r.sequencesKey(), name).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "")
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "sequence %s is not a number", name)
	}
	return value, nil
}

// Apply commits the batch in one MULTI/EXEC pipeline.
func (r *RedisBackend) Apply(ctx context.Context, batch Batch) error {
	ctx, span := r.tracer.Start(ctx, "redis.transaction.apply")
	defer span.End()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range batch.Writes {
			if w.Deleted() {
				pipe.HDel(ctx, r.tableKey(w.Table), w.Key)
			} else {
				pipe.HSet(ctx, r.tableKey(w.Table), w.Key, w.Value)
			}
		}
		for name, value := range batch.Sequences {
			pipe.HSet(ctx, r.sequencesKey(), name, strconv.FormatUint(value, 10))
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, eris.ToString(err, true))
		span.RecordError(err)
		return eris.Wrap(err, "failed to exec redis transaction")
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return eris.Wrap(r.client.Close(), "")
}
