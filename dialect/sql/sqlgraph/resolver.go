package sqlgraph

// resolveRootKey determines the root key after the root write. The
// sources are mutually ranked: an explicit input field always wins over a
// derived key; a key fetched by the internal returning statement comes
// next; a typed result's key accessor is the final source.
func resolveRootKey[R any](plan *Plan, root Row, typed *R, fetched any, haveFetched bool) (any, error) {
	if plan.keyField != "" {
		v, ok := rowValue(root, plan.keyField)
		if !ok || v == nil {
			return nil, verr(plan.keyField, "explicit key field absent on the root row")
		}
		return v, nil
	}
	if haveFetched {
		return fetched, nil
	}
	if typed != nil {
		if k, ok := any(*typed).(Keyer); ok {
			return k.Key(), nil
		}
		if k, ok := any(typed).(Keyer); ok {
			return k.Key(), nil
		}
		return nil, verr("returning", "result type %T does not expose a key accessor", *typed)
	}
	return nil, verr("root_key", "no source available for the root key")
}

// typeHasKeyer reports whether R or *R implements Keyer. Checked before
// any statement is issued so a misconfigured returning plan fails early.
func typeHasKeyer[R any]() bool {
	var zero R
	if _, ok := any(zero).(Keyer); ok {
		return true
	}
	_, ok := any(&zero).(Keyer)
	return ok
}
