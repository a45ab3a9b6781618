package redis

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docingest/internal/db"
)

// HSetMulti pipelines one HSET per item in a single DoMulti round trip.
// Every failed key is reported; items that succeeded stay written.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(items))
	for _, item := range items {
		if len(item.Fields) == 0 {
			return &db.Error{Op: db.OpHSet, Key: item.Key, Err: errors.New("no fields")}
		}
		cmd := s.b().Hset().Key(item.Key).FieldValue()
		for _, k := range slices.Sorted(maps.Keys(item.Fields)) {
			cmd = cmd.FieldValue(k, item.Fields[k])
		}
		cmds = append(cmds, cmd.Build())
	}

	var errs []error
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			errs = append(errs, &db.Error{Op: db.OpHSet, Key: items[i].Key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// HGetAll returns all fields of a hash. A missing key yields an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Key: key, Err: err}
	}
	return m, nil
}
