package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch is returned when the names, descriptions and
	// indications used to build a registry do not have the same length.
	ErrSchemaMismatch = errors.New("registry: source lengths differ")
	// ErrEmpty is returned when a registry would have no categories.
	ErrEmpty = errors.New("registry: no categories")
	// ErrIndexOutOfRange is returned by RecordAt for an index outside [0, Size()).
	ErrIndexOutOfRange = errors.New("registry: index out of range")
)

// Record is one cloud category with the text shown for it.
type Record struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Indication  string `json:"indication"`
}

// Registry is an immutable, index-addressed set of category records.
// It is safe for concurrent reads.
type Registry struct {
	records []Record
}

// Build zips the three parallel sequences into records 0..N-1.
func Build(names, descriptions, indications []string) (*Registry, error) {
	if len(names) != len(descriptions) || len(names) != len(indications) {
		return nil, fmt.Errorf("%w: names=%d descriptions=%d indications=%d",
			ErrSchemaMismatch, len(names), len(descriptions), len(indications))
	}
	if len(names) == 0 {
		return nil, ErrEmpty
	}

	records := make([]Record, len(names))
	for i := range names {
		records[i] = Record{
			Index:       i,
			Name:        names[i],
			Description: descriptions[i],
			Indication:  indications[i],
		}
	}
	return &Registry{records: records}, nil
}

// Size returns the number of categories.
func (r *Registry) Size() int {
	if r == nil {
		return 0
	}
	return len(r.records)
}

// RecordAt returns the record at index.
func (r *Registry) RecordAt(index int) (Record, error) {
	if r == nil || index < 0 || index >= len(r.records) {
		return Record{}, fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, index, r.Size())
	}
	return r.records[index], nil
}

// Records returns a copy of all records in index order.
func (r *Registry) Records() []Record {
	if r == nil {
		return nil
	}
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Names returns the category names in index order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Name
	}
	return out
}
