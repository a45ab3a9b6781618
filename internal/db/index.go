package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
	// DistanceIP is inner product distance. Equivalent to cosine on unit vectors.
	DistanceIP DistanceMetric = "IP"
)

// HNSW build parameters used when a VectorField leaves them unset.
const (
	DefaultHNSWM           = 16
	DefaultHNSWEFConstruct = 200
)

// IndexFieldType enumerates the scalar FT field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
)

// IndexField is a scalar field of an FT index schema.
type IndexField struct {
	Name     string
	Type     IndexFieldType
	Sortable bool
}

// VectorField is the HNSW vector field of an FT index. Vectors are stored as FLOAT32.
type VectorField struct {
	Name        string
	Alias       string // AS alias in FT.CREATE SCHEMA; KNN queries address the alias
	Dim         int
	Distance    DistanceMetric
	M           int // max edges per node
	EFConstruct int // build-time candidate list size
}

// IndexDefinition is a HASH-backed FT index with scalar fields and at most one vector field.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
	Vector   *VectorField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 && idx.Vector == nil {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields)+1)
	for i := range idx.Fields {
		name := idx.Fields[i].Name
		if name == "" {
			return fmt.Errorf("field name is required at index %d", i)
		}
		if seen[name] {
			return errors.New("duplicate field name: " + name)
		}
		seen[name] = true
	}

	if v := idx.Vector; v != nil {
		if v.Name == "" {
			return errors.New("vector field name is required")
		}
		if seen[v.Name] || (v.Alias != "" && seen[v.Alias]) {
			return errors.New("vector field clashes with field " + v.Name)
		}
		if v.Dim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
		switch v.Distance {
		case "", DistanceCosine, DistanceIP:
		default:
			return fmt.Errorf("unsupported distance metric %q", v.Distance)
		}
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != ':' && r != '-' {
			return false
		}
	}
	return true
}
