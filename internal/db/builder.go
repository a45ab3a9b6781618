package db

import (
	"strconv"
	"strings"
)

// IndexBuilder is a fluent builder for FT index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an FT index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric})
	return b
}

// SortableNumeric adds a NUMERIC SORTABLE field.
func (b *IndexBuilder) SortableNumeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric, Sortable: true})
	return b
}

// Tag adds a TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldTag})
	return b
}

// Vector sets the HNSW vector field. Zero m or efConstruct take the defaults.
func (b *IndexBuilder) Vector(name, alias string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	if m <= 0 {
		m = DefaultHNSWM
	}
	if efConstruct <= 0 {
		efConstruct = DefaultHNSWEFConstruct
	}
	b.def.Vector = &VectorField{
		Name:        name,
		Alias:       alias,
		Dim:         dim,
		Distance:    distance,
		M:           m,
		EFConstruct: efConstruct,
	}
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	var sb strings.Builder
	sb.WriteString("FT.CREATE ")
	sb.WriteString(idx.Name)
	sb.WriteString(" ON HASH")
	if len(idx.Prefixes) > 0 {
		sb.WriteString(" PREFIX ")
		sb.WriteString(strings.Join(idx.Prefixes, " "))
	}
	sb.WriteString(" SCHEMA")
	for _, f := range idx.Fields {
		sb.WriteString(" " + f.Name)
		if f.Type == IndexFieldTag {
			sb.WriteString(" TAG")
		} else {
			sb.WriteString(" NUMERIC")
		}
		if f.Sortable {
			sb.WriteString(" SORTABLE")
		}
	}
	if v := idx.Vector; v != nil {
		sb.WriteString(" " + v.Name)
		if v.Alias != "" {
			sb.WriteString(" AS " + v.Alias)
		}
		sb.WriteString(" VECTOR HNSW DIM " + strconv.Itoa(v.Dim))
	}
	return sb.String()
}
