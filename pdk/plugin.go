package pdk

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/wireformat"
)

// Func is the implementation of a registered function. args always match
// the registered argument tags. A nil result is treated as Void.
type Func func(ctx context.Context, args []entities.Value) (entities.Value, error)

type registration struct {
	fn   Func
	desc entities.FunctionDescriptor
}

// Plugin is the guest-side descriptor registry. Functions are registered
// during module initialization; Publish freezes the registry.
type Plugin struct {
	schemas  *entities.SchemaSet
	manifest *entities.Manifest
	memLimit int

	mu        sync.Mutex
	entries   []registration
	published bool
	funcs     map[string]Func
	table     *entities.DescriptorTable
	encoded   []byte
	err       error
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithManifest sets the identity published through the manifest export.
func WithManifest(m entities.Manifest) Option {
	return func(p *Plugin) {
		p.manifest = &m
	}
}

// WithSchemas sets the struct schemas the plugin's functions use.
func WithSchemas(s *entities.SchemaSet) Option {
	return func(p *Plugin) {
		p.schemas = s
	}
}

// WithMemoryLimit bounds the total bytes the guest allocator hands out.
func WithMemoryLimit(bytes int) Option {
	return func(p *Plugin) {
		p.memLimit = bytes
	}
}

// New creates an empty plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a function to the registry. Names are validated here;
// duplicates are reported by Publish.
func (p *Plugin) Register(name string, args []entities.TypeTag, ret entities.TypeTag, fn Func) error {
	if name == "" || !utf8.ValidString(name) {
		return fmt.Errorf("register %q: invalid function name", name)
	}
	if fn == nil {
		return fmt.Errorf("register %q: nil function", name)
	}
	if len(args) > entities.MaxArgs {
		return fmt.Errorf("register %q: %d arguments exceed the maximum of %d", name, len(args), entities.MaxArgs)
	}
	for i, tag := range args {
		if err := p.schemas.CheckTag(tag, false); err != nil {
			return fmt.Errorf("register %q: argument %d: %w", name, i, err)
		}
	}
	if err := p.schemas.CheckTag(ret, true); err != nil {
		return fmt.Errorf("register %q: return: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published {
		return fmt.Errorf("register %q: %w", name, abierrors.ErrPublished)
	}
	p.entries = append(p.entries, registration{
		desc: entities.FunctionDescriptor{Name: name, Args: append([]entities.TypeTag(nil), args...), Return: ret},
		fn:   fn,
	})
	return nil
}

// MustRegister is like Register but panics on error.
func (p *Plugin) MustRegister(name string, args []entities.TypeTag, ret entities.TypeTag, fn Func) {
	if err := p.Register(name, args, ret, fn); err != nil {
		panic(err)
	}
}

// Publish freezes the registry and returns the table with its serialized form.
// A name registered twice fails with *errors.DuplicateExportError. Publish may
// be called repeatedly and always returns the first result.
func (p *Plugin) Publish() (*entities.DescriptorTable, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.published {
		return p.table, p.encoded, p.err
	}
	p.published = true

	funcs := make(map[string]Func, len(p.entries))
	descs := make([]entities.FunctionDescriptor, 0, len(p.entries))
	for _, e := range p.entries {
		if _, dup := funcs[e.desc.Name]; dup {
			p.err = &abierrors.DuplicateExportError{Name: e.desc.Name}
			return nil, nil, p.err
		}
		funcs[e.desc.Name] = e.fn
		descs = append(descs, e.desc)
	}

	table := entities.NewDescriptorTable(descs...)
	encoded, err := wireformat.EncodeTable(table)
	if err != nil {
		p.err = fmt.Errorf("publish: %w", err)
		return nil, nil, p.err
	}
	p.funcs, p.table, p.encoded = funcs, table, encoded
	p.entries = nil
	return p.table, p.encoded, nil
}

// Schemas returns the plugin's struct schemas.
func (p *Plugin) Schemas() *entities.SchemaSet { return p.schemas }

// Manifest returns the plugin's identity, if one was set.
func (p *Plugin) Manifest() (entities.Manifest, bool) {
	if p.manifest == nil {
		return entities.Manifest{}, false
	}
	return *p.manifest, true
}

func (p *Plugin) lookup(name string) (entities.FunctionDescriptor, Func, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.funcs[name]
	if !ok {
		return entities.FunctionDescriptor{}, nil, false
	}
	desc, _ := p.table.Lookup(name)
	return desc, fn, true
}
