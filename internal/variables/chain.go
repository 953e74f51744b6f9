package variables

import "github.com/bissakov/qazcode-rpa-sub001/internal/expr"

// Chain resolves names against local first and global second, so locals
// shadow globals. Either store may be nil.
func Chain(local, global *Store) expr.Resolver {
	return chain{local: local, global: global}
}

type chain struct {
	local, global *Store
}

func (c chain) Resolve(name string) (expr.Value, error) {
	if c.local != nil {
		if v, ok := c.local.Get(name); ok {
			return v, nil
		}
	}
	if c.global != nil {
		if v, ok := c.global.Get(name); ok {
			return v, nil
		}
	}
	return expr.Undefined(), undefinedVariable(name)
}

// Owner returns the store that currently holds name, local first.
// It returns nil when neither store has it.
func Owner(name string, local, global *Store) *Store {
	if local != nil && local.Has(name) {
		return local
	}
	if global != nil && global.Has(name) {
		return global
	}
	return nil
}
