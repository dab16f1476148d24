package weights

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildContext creates the variable layout of a small model, with values
// derived from base so two contexts can be told apart.
func buildContext(base float32) *context.Context {
	ctx := context.New()
	model := ctx.In("model")
	model.In("encoder").VariableWithValue("w", [][]float32{{base, base + 1}, {base + 2, base + 3}})
	model.In("decoder").VariableWithValue("modes", []float32{base + 4, base + 5})
	ctx.In("other").VariableWithValue("x", base)
	return ctx
}

func variableValue(t *testing.T, ctx *context.Context, scope, name string) any {
	v := ctx.InspectVariable(scope, name)
	require.NotNilf(t, v, "variable %s/%s", scope, name)
	value, err := v.Value()
	require.NoError(t, err)
	return value.Value()
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "weights.pt")
	src := buildContext(10)
	require.NoError(t, Save(src, "/model", path))

	dst := buildContext(90)
	require.NoError(t, Load(dst, "/model", path))

	assert.Equal(t,
		variableValue(t, src, "/model/encoder", "w"),
		variableValue(t, dst, "/model/encoder", "w"))
	assert.Equal(t,
		variableValue(t, src, "/model/decoder", "modes"),
		variableValue(t, dst, "/model/decoder", "modes"))

	// Variables outside the saved scope are untouched.
	assert.Equal(t, float32(90), variableValue(t, dst, "/other", "x"))
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.pt")
	require.NoError(t, Save(buildContext(1), "/model", path))
	require.NoError(t, Save(buildContext(2), "/model", path))

	dst := buildContext(0)
	require.NoError(t, Load(dst, "/model", path))
	assert.Equal(t, [][]float32{{2, 3}, {4, 5}}, variableValue(t, dst, "/model/encoder", "w"))
}

func TestSaveEmptyScope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.pt")
	err := Save(buildContext(1), "/missing", path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestLoadIntoMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.pt")
	require.NoError(t, Save(buildContext(1), "/model", path))

	// A context built differently lacks the recorded variables.
	dst := context.New()
	dst.In("model").VariableWithValue("unrelated", float32(0))
	require.Error(t, Load(dst, "/model", path))
}

func TestLoadScopeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.pt")
	require.NoError(t, Save(buildContext(1), "/model", path))

	// The file holds variables outside the narrower requested scope.
	require.Error(t, Load(buildContext(1), "/model/encoder", path))
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(buildContext(1), "/model", filepath.Join(t.TempDir(), "absent.pt"))
	require.Error(t, err)
}
