package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/pdk"
	plugintest "github.com/wasmplug/wasmplug/testing"
)

var recordSchema = entities.Schema{
	ID:   1,
	Name: "record",
	Fields: []entities.Field{
		{Name: "id", Tag: entities.I32},
		{Name: "label", Tag: entities.Str},
	},
}

var testSchemas = entities.MustSchemaSet(recordSchema)

func i32s(n int) []entities.TypeTag {
	tags := make([]entities.TypeTag, n)
	for i := range tags {
		tags[i] = entities.I32
	}
	return tags
}

// mathPlugin exercises every result path of the dispatcher.
func mathPlugin() *pdk.Plugin {
	p := pdk.New(
		pdk.WithManifest(entities.Manifest{ID: "math", Version: "1.2.0"}),
		pdk.WithSchemas(testSchemas),
	)
	p.MustRegister("func", nil, entities.I32,
		func(context.Context, []entities.Value) (entities.Value, error) {
			return entities.Int32(2), nil
		})
	p.MustRegister("add", i32s(2), entities.I32,
		func(_ context.Context, args []entities.Value) (entities.Value, error) {
			return args[0].(entities.Int32) + args[1].(entities.Int32), nil
		})
	p.MustRegister("greet", []entities.TypeTag{entities.Str, entities.Buf}, entities.Str,
		func(_ context.Context, args []entities.Value) (entities.Value, error) {
			return entities.String(string(args[0].(entities.String)) + " " + string(args[1].(entities.Bytes))), nil
		})
	p.MustRegister("relabel", []entities.TypeTag{entities.StructTag(1), entities.Str}, entities.StructTag(1),
		func(_ context.Context, args []entities.Value) (entities.Value, error) {
			rec := args[0].(entities.Struct)
			return entities.NewStruct(1, rec.Fields[0], args[1]), nil
		})
	p.MustRegister("nothing", nil, entities.VoidTag,
		func(context.Context, []entities.Value) (entities.Value, error) {
			return nil, nil
		})
	p.MustRegister("fail", nil, entities.I32,
		func(context.Context, []entities.Value) (entities.Value, error) {
			return nil, errors.New("boom")
		})
	p.MustRegister("liar", nil, entities.I32,
		func(context.Context, []entities.Value) (entities.Value, error) {
			return entities.String("not an int"), nil
		})
	p.MustRegister("crash", nil, entities.VoidTag,
		func(context.Context, []entities.Value) (entities.Value, error) {
			panic("guest fault")
		})
	p.MustRegister("slow", nil, entities.VoidTag,
		func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	return p
}

// relayPlugin forwards calls to other plugins through call_plugin.
func relayPlugin() *pdk.Plugin {
	p := pdk.New(pdk.WithManifest(entities.Manifest{ID: "relay"}))
	p.MustRegister("forward", []entities.TypeTag{entities.Str, entities.Str, entities.I32, entities.I32}, entities.I32,
		func(ctx context.Context, args []entities.Value) (entities.Value, error) {
			id, fn := string(args[0].(entities.String)), string(args[1].(entities.String))
			return pdk.CallPlugin(ctx, id, fn, args[2], args[3])
		})
	p.MustRegister("add", i32s(2), entities.I32,
		func(_ context.Context, args []entities.Value) (entities.Value, error) {
			return args[0].(entities.Int32) + args[1].(entities.Int32), nil
		})
	return p
}

func newTestRuntime(t *testing.T, opts ...Option) (*Runtime, *plugintest.Engine) {
	t.Helper()
	engine := plugintest.NewEngine()
	base := []Option{
		WithEngineFactory(engine.Factory()),
		WithLogger(zaptest.NewLogger(t)),
		WithSchemas(testSchemas),
	}
	rt, err := NewRuntime(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt, engine
}

func loadMath(t *testing.T, rt *Runtime, engine *plugintest.Engine, opts ...LoadOption) (*Plugin, *plugintest.Instance) {
	t.Helper()
	p, err := rt.Load(context.Background(), engine.Register("math", mathPlugin()), opts...)
	require.NoError(t, err)
	instances := engine.Instances()
	return p, instances[len(instances)-1]
}
