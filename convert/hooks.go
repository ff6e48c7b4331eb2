package convert

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
)

// HookFunc is a custom preprocessor or processor hook (spec §4.3 step
// 2, §4.4 step 2).
type HookFunc func(ds *dataset.Dataset) (*dataset.Dataset, error)

var hookIdentRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*([./][A-Za-z_][A-Za-z0-9_]*)*:[A-Za-z_][A-Za-z0-9_]*$`)

var (
	hookMu    sync.RWMutex
	hookTable = map[string]HookFunc{}
)

// RegisterHook makes fn resolvable under name (the Go-native reading
// of spec §9's "module must load; attribute must resolve" design
// note: Go has no dynamic module loader, so hooks are registered
// ahead of time at process init instead of loaded by string at
// runtime). name must be of the form "pkgpath:Func".
func RegisterHook(name string, fn HookFunc) {
	hookMu.Lock()
	defer hookMu.Unlock()
	hookTable[name] = fn
}

// ResolveHook validates and looks up a "<module>:<function>" hook
// reference, per spec §4.3 step 2 / §4.4 step 2.
func ResolveHook(ref string) (HookFunc, error) {
	if !hookIdentRE.MatchString(ref) {
		return nil, fmt.Errorf("%w: malformed hook reference %q", nzerr.CustomHookError, ref)
	}
	hookMu.RLock()
	fn, ok := hookTable[ref]
	hookMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unregistered hook %q", nzerr.CustomHookError, ref)
	}
	return fn, nil
}
