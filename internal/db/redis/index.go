package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/kailas-cloud/docingest/internal/db"
)

// CreateIndex runs FT.CREATE for def.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := createArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Key: def.Name, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
	return true, nil
}

// createArgs renders def as FT.CREATE arguments:
//
//	name ON HASH [PREFIX n p...] SCHEMA {field TAG|NUMERIC [SORTABLE]}... [vec [AS alias] VECTOR HNSW 10 ...]
func createArgs(def *db.IndexDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	args := []string{def.Name, "ON", "HASH"}
	if len(def.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(def.Prefixes)))
		args = append(args, def.Prefixes...)
	}

	args = append(args, "SCHEMA")
	for _, f := range def.Fields {
		switch f.Type {
		case db.IndexFieldTag:
			args = append(args, f.Name, "TAG")
		case db.IndexFieldNumeric:
			args = append(args, f.Name, "NUMERIC")
		default:
			return nil, errors.New("unknown field type for " + f.Name)
		}
		if f.Sortable {
			args = append(args, "SORTABLE")
		}
	}

	if def.Vector != nil {
		args = append(args, vectorArgs(def.Vector)...)
	}
	return args, nil
}

func vectorArgs(v *db.VectorField) []string {
	distance := v.Distance
	if distance == "" {
		distance = db.DistanceCosine
	}
	m, ef := v.M, v.EFConstruct
	if m <= 0 {
		m = db.DefaultHNSWM
	}
	if ef <= 0 {
		ef = db.DefaultHNSWEFConstruct
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(distance),
		"M", strconv.Itoa(m),
		"EF_CONSTRUCTION", strconv.Itoa(ef),
	}

	args := []string{v.Name}
	if v.Alias != "" {
		args = append(args, "AS", v.Alias)
	}
	args = append(args, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	return append(args, attrs...)
}
