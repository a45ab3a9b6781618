package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docingest/internal/db"
)

// SearchKNN runs a KNN query via FT.SEARCH, nearest first.
// Scores are cosine similarity: 1 - distance, clamped at 0.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if err := validateKNN(q); err != nil {
		return nil, err
	}

	field := q.VectorField
	if field == "" {
		field = db.DefaultVectorField
	}
	scoreField := "__" + field + "_score"

	args := []string{q.IndexName, knnQueryString(q, field)}
	if len(q.ReturnFields) > 0 {
		fields := append(append([]string{}, q.ReturnFields...), scoreField)
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}

	params := []string{"BLOB", vectorToBytes(q.Vector)}
	if q.EFRuntime > 0 {
		params = append(params, "EF", strconv.Itoa(q.EFRuntime))
	}
	args = append(args,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", strconv.Itoa(len(params)),
	)
	args = append(args, params...)
	args = append(args, "DIALECT", "2")

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
	}
	return parseKNNResult(raw, scoreField)
}

func validateKNN(q *db.KNNQuery) error {
	switch {
	case q.IndexName == "":
		return errors.New("index name is required")
	case len(q.Vector) == 0:
		return errors.New("vector is required")
	case q.K <= 0:
		return errors.New("k must be positive")
	}
	return nil
}

// knnQueryString renders "(filters)=>[KNN k @field $BLOB]" or "*=>[...]" without filters.
func knnQueryString(q *db.KNNQuery, field string) string {
	knn := fmt.Sprintf("[KNN %d @%s $BLOB", q.K, field)
	if q.EFRuntime > 0 {
		knn += " EF_RUNTIME $EF"
	}
	knn += "]"

	if filter := buildFilter(q.Filters); filter != "" {
		return "(" + filter + ")=>" + knn
	}
	return "*=>" + knn
}

// parseKNNResult reads the RESP2 reply [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, scoreField string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, min(int(total), len(raw)/2))
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(pairs)}
		if dist, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(dist, 64); err == nil {
				entry.Score = max(0, 1-d)
			}
			delete(entry.Fields, scoreField)
		}
		entries = append(entries, entry)
	}
	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err := pairs[j].ToString()
		if err != nil {
			continue
		}
		value, err := pairs[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// buildFilter ANDs tag equality filters into an FT.SEARCH pre-filter.
func buildFilter(filters []db.TagFilter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, "@"+f.Field+":{"+tagEscaper.Replace(f.Value)+"}")
	}
	return strings.Join(parts, " ")
}

// tagEscaper escapes the TAG query metacharacters; file paths and URIs hit most of them.
var tagEscaper = strings.NewReplacer(
	",", `\,`, ".", `\.`, "<", `\<`, ">", `\>`,
	"{", `\{`, "}", `\}`, "[", `\[`, "]", `\]`,
	`"`, `\"`, "'", `\'`, ":", `\:`, ";", `\;`,
	"!", `\!`, "@", `\@`, "#", `\#`, "$", `\$`,
	"%", `\%`, "^", `\^`, "&", `\&`, "*", `\*`,
	"(", `\(`, ")", `\)`, "-", `\-`, "+", `\+`,
	"=", `\=`, "~", `\~`, "/", `\/`, "|", `\|`,
	`\`, `\\`, " ", `\ `,
)

// vectorToBytes encodes v as the little-endian FLOAT32 blob FT.SEARCH expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
