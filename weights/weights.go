// Package weights persists the variables of a context scope -- typically the
// scope holding a network's parameters -- to a single binary file, and loads
// them back into an identically-built context.
//
// Unlike a full training checkpoint, a weights file carries only the
// variables under the requested scope: no optimizer state, no
// hyperparameters. The file is a gob stream of (scope, name, tensor) records
// in deterministic order, and is never mutated after creation.
package weights

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// scopedVariables collects the variables whose scope is scope itself or
// nested below it, sorted by scope and name.
func scopedVariables(ctx *context.Context, scope string) []*context.Variable {
	var vars []*context.Variable
	for v := range ctx.IterVariables() {
		if v.Scope() == scope || strings.HasPrefix(v.Scope(), scope+context.ScopeSeparator) {
			vars = append(vars, v)
		}
	}
	sort.Slice(vars, func(i, j int) bool {
		return vars[i].ScopeAndName() < vars[j].ScopeAndName()
	})
	return vars
}

// Save writes all variables under the given scope of ctx to filePath,
// creating the parent directory if needed (idempotent). It fails if the
// scope holds no variables, which usually means the network was never
// applied.
func Save(ctx *context.Context, scope, filePath string) error {
	vars := scopedVariables(ctx, scope)
	if len(vars) == 0 {
		return errors.Errorf("no variables found under scope %q, nothing to save", scope)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0777); err != nil {
		return errors.Wrapf(err, "failed to create directory for weights file %q", filePath)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create weights file %q", filePath)
	}
	enc := gob.NewEncoder(f)
	if err = enc.Encode(len(vars)); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode weights file %q", filePath)
	}
	for _, v := range vars {
		value, err := v.Value()
		if err != nil {
			_ = f.Close()
			return errors.WithMessagef(err, "failed to read value of variable %q", v.ScopeAndName())
		}
		if err = enc.Encode(v.Scope()); err == nil {
			if err = enc.Encode(v.Name()); err == nil {
				err = value.GobSerialize(enc)
			}
		}
		if err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "failed to serialize variable %q to %q", v.ScopeAndName(), filePath)
		}
	}
	return errors.Wrapf(f.Close(), "failed to close weights file %q", filePath)
}

// Load reads a weights file written by Save and sets the values of the
// corresponding variables in ctx. Every variable recorded in the file must
// already exist in ctx (that is, the network must have been built the same
// way), and its recorded scope must live under the given scope.
func Load(ctx *context.Context, scope, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open weights file %q", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := gob.NewDecoder(f)
	var count int
	if err = dec.Decode(&count); err != nil {
		return errors.Wrapf(err, "failed to decode weights file %q", filePath)
	}
	for i := 0; i < count; i++ {
		var varScope, name string
		if err = dec.Decode(&varScope); err == nil {
			err = dec.Decode(&name)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to decode variable header %d of %q", i, filePath)
		}
		value, err := tensors.GobDeserialize(dec)
		if err != nil {
			return errors.Wrapf(err, "failed to decode tensor for variable %q/%q of %q", varScope, name, filePath)
		}
		if varScope != scope && !strings.HasPrefix(varScope, scope+context.ScopeSeparator) {
			return errors.Errorf("weights file %q holds variable %q outside of requested scope %q",
				filePath, context.JoinScope(varScope, name), scope)
		}
		v := ctx.InspectVariable(varScope, name)
		if v == nil {
			return errors.Errorf("weights file %q holds variable %q not present in the context -- "+
				"was the network built before loading?", filePath, context.JoinScope(varScope, name))
		}
		if err = v.SetValue(value); err != nil {
			return errors.WithMessagef(err, "failed to set variable %q from %q", v.ScopeAndName(), filePath)
		}
	}
	return nil
}
