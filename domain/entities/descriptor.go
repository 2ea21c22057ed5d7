package entities

import (
	"fmt"
	"slices"
	"strings"
)

// MaxArgs is the largest argument count a descriptor can declare.
const MaxArgs = 255

// FunctionDescriptor is the signature a plugin publishes for one callable function.
type FunctionDescriptor struct {
	Name   string
	Args   []TypeTag
	Return TypeTag
}

// Signature renders the descriptor as name(arg, ...) -> ret.
func (d FunctionDescriptor) Signature() string {
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", d.Name, strings.Join(args, ", "), d.Return)
}

// DescriptorTable is the ordered list of functions a plugin exposes.
// It is read-only once published; lookups never mutate it.
type DescriptorTable struct {
	byName    map[string]int
	functions []FunctionDescriptor
}

// NewDescriptorTable builds a table preserving the given order.
// When a name repeats, lookups resolve to its first occurrence; use Duplicates
// to detect that case.
func NewDescriptorTable(functions ...FunctionDescriptor) *DescriptorTable {
	t := &DescriptorTable{
		functions: make([]FunctionDescriptor, len(functions)),
		byName:    make(map[string]int, len(functions)),
	}
	for i, fn := range functions {
		if len(fn.Args) == 0 {
			fn.Args = nil
		} else {
			fn.Args = slices.Clone(fn.Args)
		}
		t.functions[i] = fn
		if _, exists := t.byName[fn.Name]; !exists {
			t.byName[fn.Name] = i
		}
	}
	return t
}

// Len returns the number of descriptors.
func (t *DescriptorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.functions)
}

// Lookup returns the descriptor registered under name.
func (t *DescriptorTable) Lookup(name string) (FunctionDescriptor, bool) {
	if t == nil {
		return FunctionDescriptor{}, false
	}
	i, ok := t.byName[name]
	if !ok {
		return FunctionDescriptor{}, false
	}
	return t.functions[i], true
}

// Functions returns a copy of the descriptors in table order.
func (t *DescriptorTable) Functions() []FunctionDescriptor {
	if t == nil {
		return nil
	}
	out := make([]FunctionDescriptor, len(t.functions))
	for i, fn := range t.functions {
		fn.Args = slices.Clone(fn.Args)
		out[i] = fn
	}
	return out
}

// Names returns the function names in table order.
func (t *DescriptorTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.functions))
	for i, fn := range t.functions {
		names[i] = fn.Name
	}
	return names
}

// Duplicates returns every name that occurs more than once, in first-seen order.
func (t *DescriptorTable) Duplicates() []string {
	if t == nil {
		return nil
	}
	counts := make(map[string]int, len(t.functions))
	var dups []string
	for _, fn := range t.functions {
		counts[fn.Name]++
		if counts[fn.Name] == 2 {
			dups = append(dups, fn.Name)
		}
	}
	return dups
}
