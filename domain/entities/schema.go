package entities

import (
	"fmt"
	"slices"
	"strings"
)

// Field is a named, typed member of a struct schema.
type Field struct {
	Name string
	Tag  TypeTag
}

// Schema is the ordered field list a struct schema-id refers to.
type Schema struct {
	Name   string
	Fields []Field
	ID     uint32
}

// Equal reports whether two schemas declare the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	return s.ID == o.ID && s.Name == o.Name && slices.Equal(s.Fields, o.Fields)
}

// SchemaSet is an immutable collection of schemas keyed by ID.
// A nil *SchemaSet is valid and contains no schemas.
type SchemaSet struct {
	byID map[uint32]Schema
	ids  []uint32 // sorted for consistent iteration
}

// NewSchemaSet validates and freezes the given schemas.
// It fails on duplicate IDs, empty or repeated field names, invalid field tags,
// struct fields that reference a schema not present in the set, and schemas
// that contain themselves through any chain of struct fields.
func NewSchemaSet(schemas ...Schema) (*SchemaSet, error) {
	set := &SchemaSet{byID: make(map[uint32]Schema, len(schemas))}
	for _, s := range schemas {
		if _, exists := set.byID[s.ID]; exists {
			return nil, fmt.Errorf("duplicate schema id %d", s.ID)
		}
		set.byID[s.ID] = cloneSchema(s)
		set.ids = append(set.ids, s.ID)
	}
	slices.Sort(set.ids)

	for _, id := range set.ids {
		if err := set.validate(set.byID[id]); err != nil {
			return nil, err
		}
	}
	if err := set.checkAcyclic(); err != nil {
		return nil, err
	}
	return set, nil
}

// MustSchemaSet is like NewSchemaSet but panics on error.
// Use it for package-level schema declarations.
func MustSchemaSet(schemas ...Schema) *SchemaSet {
	set, err := NewSchemaSet(schemas...)
	if err != nil {
		panic(fmt.Sprintf("invalid schema set: %v", err))
	}
	return set
}

func (s *SchemaSet) validate(schema Schema) error {
	seen := make(map[string]struct{}, len(schema.Fields))
	for i, f := range schema.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %d: field %d has no name", schema.ID, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %d: duplicate field %q", schema.ID, f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := s.CheckTag(f.Tag, false); err != nil {
			return fmt.Errorf("schema %d: field %q: %w", schema.ID, f.Name, err)
		}
	}
	return nil
}

// checkAcyclic rejects struct references that form a cycle. No finite value
// has such a type.
func (s *SchemaSet) checkAcyclic() error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[uint32]int, len(s.ids))
	var path []uint32

	var visit func(id uint32) error
	visit = func(id uint32) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, id)
			cycle := make([]string, 0, len(path)-start+1)
			for _, p := range append(path[start:], id) {
				cycle = append(cycle, fmt.Sprint(p))
			}
			return fmt.Errorf("schema %d: cyclic struct reference %s", id, strings.Join(cycle, " -> "))
		}
		state[id] = visiting
		path = append(path, id)
		for _, f := range s.byID[id].Fields {
			if f.Tag.Kind != KindStruct {
				continue
			}
			if err := visit(f.Tag.SchemaID); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range s.ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// CheckTag verifies that tag is a known kind and, for structs, that its schema
// is in the set. Void is accepted only when allowVoid is true.
func (s *SchemaSet) CheckTag(tag TypeTag, allowVoid bool) error {
	if !tag.Kind.Valid() {
		return fmt.Errorf("unknown kind %s", tag.Kind)
	}
	if tag.Kind == KindVoid && !allowVoid {
		return fmt.Errorf("void is only valid as a return type")
	}
	if tag.Kind == KindStruct {
		if _, ok := s.Lookup(tag.SchemaID); !ok {
			return fmt.Errorf("unknown schema id %d", tag.SchemaID)
		}
	}
	return nil
}

// Lookup returns the schema with the given ID.
func (s *SchemaSet) Lookup(id uint32) (Schema, bool) {
	if s == nil {
		return Schema{}, false
	}
	schema, ok := s.byID[id]
	return schema, ok
}

// IDs returns the sorted schema IDs in the set.
func (s *SchemaSet) IDs() []uint32 {
	if s == nil {
		return nil
	}
	return slices.Clone(s.ids)
}

// Len returns the number of schemas.
func (s *SchemaSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Merge returns a new set holding the schemas of both sets.
// Identical schemas present in both are kept once; conflicting definitions fail.
func (s *SchemaSet) Merge(other *SchemaSet) (*SchemaSet, error) {
	if other.Len() == 0 {
		if s == nil {
			return &SchemaSet{byID: map[uint32]Schema{}}, nil
		}
		return s, nil
	}
	all := make([]Schema, 0, s.Len()+other.Len())
	for _, id := range s.IDs() {
		all = append(all, s.byID[id])
	}
	for _, id := range other.ids {
		theirs := other.byID[id]
		if mine, ok := s.Lookup(id); ok {
			if !mine.Equal(theirs) {
				return nil, fmt.Errorf("conflicting definitions for schema id %d", id)
			}
			continue
		}
		all = append(all, theirs)
	}
	return NewSchemaSet(all...)
}

func cloneSchema(s Schema) Schema {
	s.Fields = slices.Clone(s.Fields)
	return s
}
