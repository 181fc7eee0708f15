package bundle

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Check routines are Go source interpreted at runtime with yaegi rather than
// compiled in. Bundles are authored externally and land in blob storage; the
// engine must pick them up without a redeploy. Each Load gets a fresh
// interpreter, so concurrently running assessments can never observe each
// other's loaded state.

var (
	// ErrUnavailable wraps bundle fetch failures.
	ErrUnavailable = errors.New("bundle unavailable")
	// ErrInvalid wraps bundle parse/eval failures.
	ErrInvalid = errors.New("bundle invalid")
)

// CheckRoutine is one invocable check loaded from a bundle. Invoke hands the
// routine the subject, its environment target, and flattened short-lived
// credentials; the returned map is outcome-shaped but unvalidated (the
// sandbox owns shape validation).
type CheckRoutine interface {
	Invoke(subjectID, environmentTarget string, credentials map[string]string) map[string]interface{}
}

// RoutineSet maps routine names to loaded routines for a single assessment
// run. The set is exclusively owned by the run that loaded it.
type RoutineSet map[string]CheckRoutine

// blockedImports are packages a check routine may never pull in. Routines
// need network access to inspect the subject's environment, so the list is a
// blocklist of host-escape packages rather than an allowlist.
var blockedImports = map[string]bool{
	"os":            true,
	"os/exec":       true,
	"os/signal":     true,
	"syscall":       true,
	"unsafe":        true,
	"plugin":        true,
	"runtime/debug": true,
}

// Loader fetches bundle source and instantiates it in an isolated
// interpreter.
type Loader struct {
	blobs BlobStore
}

func NewLoader(blobs BlobStore) *Loader {
	return &Loader{blobs: blobs}
}

// Load fetches the bundle at key and resolves the required routine names.
// Names absent from the bundle are simply absent from the returned set; the
// orchestrator synthesizes their outcomes. Load fails with ErrUnavailable on
// fetch errors and ErrInvalid on source errors, both terminal for the run.
func (l *Loader) Load(ctx context.Context, key string, required []string) (RoutineSet, error) {
	src, err := l.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %q: %v", ErrUnavailable, key, err)
	}

	code := wrapSource(string(src))
	if err := validateImports(code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("%w: load stdlib symbols: %v", ErrInvalid, err)
	}
	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return nil, fmt.Errorf("%w: eval bundle %q: %v", ErrInvalid, key, err)
	}

	set := make(RoutineSet, len(required))
	for _, name := range required {
		v, err := i.Eval("checks." + name)
		if err != nil {
			continue // routine not defined; absent from the set
		}
		set[name] = &interpretedRoutine{fn: v}
	}
	return set, nil
}

// interpretedRoutine bridges a yaegi symbol into the CheckRoutine contract.
type interpretedRoutine struct {
	fn reflect.Value
}

func (r *interpretedRoutine) Invoke(subjectID, environmentTarget string, credentials map[string]string) map[string]interface{} {
	// Fast path: the expected signature asserts cleanly across the
	// interpreter boundary.
	if fn, ok := r.fn.Interface().(func(string, string, map[string]string) map[string]interface{}); ok {
		return fn(subjectID, environmentTarget, credentials)
	}
	// Fall back to reflective invocation; a signature mismatch panics here
	// and the sandbox converts it into a contract-violation outcome.
	out := r.fn.Call([]reflect.Value{
		reflect.ValueOf(subjectID),
		reflect.ValueOf(environmentTarget),
		reflect.ValueOf(credentials),
	})
	if len(out) == 0 {
		return nil
	}
	result, _ := out[0].Interface().(map[string]interface{})
	return result
}

// wrapSource forces the bundle into the fixed "checks" package so symbol
// lookup is uniform across bundles.
func wrapSource(src string) string {
	if strings.Contains(src, "package checks") {
		return src
	}
	return "package checks\n\n" + src
}

// validateImports parses the wrapped source and checks every declared import
// against the blocklist. Parsing, rather than scanning lines, means aliased,
// grouped, and one-line import forms are all covered.
func validateImports(code string) error {
	file, err := parser.ParseFile(token.NewFileSet(), "bundle.go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse bundle source: %v", err)
	}
	var forbidden []string
	for _, spec := range file.Imports {
		pkg, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return fmt.Errorf("malformed import %s", spec.Path.Value)
		}
		if blockedImports[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
