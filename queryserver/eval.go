package queryserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
)

// emission is one [key, value] record captured by emit() during a single
// map-function invocation, before diversion is considered.
type emission struct {
	Key   interface{}
	Value interface{}
}

// mapFunc is a compiled, callable map function plus the source digest it
// was registered under.
type mapFunc struct {
	digest string
	source string
	call   goja.Callable
}

// digestOf returns the stable content hash used for scratch-file naming
// and compiled-function dedup, so re-registering identical source reuses
// the compiled artifact.
func digestOf(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:8]
}

// normalize rewrites bare "function map(doc){...}" declarations into a
// parenthesized expression so evaluating the text yields the function
// value itself, rather than declaring it into scope under a name that
// would collide across registrations.
func normalize(source string) string {
	return "(" + source + "\n)"
}

// compile writes the normalized source to a scratch file (named by pid and
// digest, overwritten but never cleaned up) and compiles it into a
// callable bound to vm.
func compile(vm *goja.Runtime, source string) (*mapFunc, error) {
	digest := digestOf(source)
	wrapped := normalize(source)

	scratchPath := filepath.Join(os.TempDir(), fmt.Sprintf("supercouch-mapfn-%d-%s.js", os.Getpid(), digest))
	if err := os.WriteFile(scratchPath, []byte(wrapped), 0o644); err != nil {
		return nil, fmt.Errorf("queryserver: write scratch file: %w", err)
	}

	program, err := goja.Compile(scratchPath, wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("queryserver: compile map function: %w", err)
	}
	v, err := vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("queryserver: evaluate map function: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("queryserver: map function source did not evaluate to a function")
	}
	return &mapFunc{digest: digest, source: source, call: fn}, nil
}

// normalizeEmitKey applies the emit() key-shaping rule: a missing key
// becomes nil, a scalar key is wrapped into a one-element array, and an
// array-like key passes through unchanged.
func normalizeEmitKey(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	if arr, ok := exported.([]interface{}); ok {
		return arr
	}
	return []interface{}{exported}
}

// bindRuntime installs the process-wide emit/log helpers onto vm. scratch
// points at the engine's current per-call emission buffer; logFn receives
// user log() calls.
func bindRuntime(vm *goja.Runtime, scratch *[]emission, logFn func(string)) {
	vm.Set("emit", func(call goja.FunctionCall) goja.Value {
		var keyArg, valArg goja.Value
		if len(call.Arguments) > 0 {
			keyArg = call.Arguments[0]
		}
		if len(call.Arguments) > 1 {
			valArg = call.Arguments[1]
		}
		var value interface{}
		if valArg != nil {
			value = valArg.Export()
		}
		*scratch = append(*scratch, emission{Key: normalizeEmitKey(keyArg), Value: value})
		return goja.Undefined()
	})

	vm.Set("log", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			logFn(call.Arguments[0].String())
		}
		return goja.Undefined()
	})
}
