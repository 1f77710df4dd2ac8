package db

import (
	"errors"
	"fmt"
)

// DistanceCosine is the only metric the embedding index uses; scores are reported as 1 - distance.
const DistanceCosine = "COSINE"

// VectorHNSW and VectorFlat select the FT vector algorithm.
const (
	VectorHNSW = "HNSW"
	VectorFlat = "FLAT"
)

// IndexFieldType enumerates the FT field types the embedding index declares.
type IndexFieldType int

const (
	// IndexFieldNumeric holds the embedding revision.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag holds exact-match ids (record, list). Always case sensitive.
	IndexFieldTag
	// IndexFieldVector holds FLOAT32 embeddings.
	IndexFieldVector
)

// IndexField is one field of an FT schema.
type IndexField struct {
	Name string
	Type IndexFieldType

	VectorAlgo        string
	VectorDim         int
	VectorM           int // HNSW max edges per node
	VectorEFConstruct int // HNSW build-time candidate list size
}

// IndexDefinition is an FT index over hashes sharing a key prefix.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks the definition before FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	seen := make(map[string]bool, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		switch {
		case f.Name == "":
			return fmt.Errorf("field name is required at index %d", i)
		case seen[f.Name]:
			return fmt.Errorf("duplicate field name: %s", f.Name)
		case f.Type == IndexFieldVector && f.VectorDim <= 0:
			return fmt.Errorf("vector field %s requires positive DIM", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// IsValidIdentifier reports whether s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == ':', r == '-':
		default:
			return false
		}
	}
	return true
}

// IndexBuilder assembles an IndexDefinition.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix restricts the index to hashes under the given key prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric})
	return b
}

// Tag adds a case-sensitive TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldTag})
	return b
}

// VectorHNSW adds a cosine HNSW vector field. Non-positive m or efConstruct keep the server defaults.
func (b *IndexBuilder) VectorHNSW(name string, dim, m, efConstruct int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:              name,
		Type:              IndexFieldVector,
		VectorAlgo:        VectorHNSW,
		VectorDim:         dim,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}
