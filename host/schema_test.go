package host

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlugin_JSONSchema(t *testing.T) {
	rt, engine := newTestRuntime(t)
	p, _ := loadMath(t, rt, engine)

	schemas := p.JSONSchema()
	require.Len(t, schemas, p.Table().Len())

	add, err := json.Marshal(schemas["add"])
	require.NoError(t, err)
	assert.Contains(t, string(add), `"prefixItems":[{"type":"integer","format":"int32"},{"type":"integer","format":"int32"}]`)
	assert.Contains(t, string(add), `"items":false`)
	assert.Contains(t, string(add), `"title":"add"`)

	relabel, err := json.Marshal(schemas["relabel"])
	require.NoError(t, err)
	assert.Contains(t, string(relabel), `"title":"record"`)
	assert.Contains(t, string(relabel), `"required":["id","label"]`)

	greet, err := json.Marshal(schemas["greet"])
	require.NoError(t, err)
	assert.Contains(t, string(greet), `"contentEncoding":"base64"`)

	nothing, err := json.Marshal(schemas["nothing"])
	require.NoError(t, err)
	assert.Contains(t, string(nothing), `"result":{"type":"null"}`)
}
