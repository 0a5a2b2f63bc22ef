package argtree

// FieldTransform inspects a single object field (by key) and returns its
// replacement value, or an error to abort the walk. It is applied before
// Walk recurses into the returned value, so a transform may itself replace
// a string leaf with something Walk will then descend into unchanged.
type FieldTransform func(key string, v Value) (Value, error)

// Walk performs structural recursion over v, applying transform to every
// object field's value (keyed by its field name) before descending into
// arrays and nested objects. This is the generic machinery behind the
// sanitizing visitor: callers that need "any key ending in path" or "any
// key named command" semantics implement those rules inside transform.
func Walk(v Value, transform FieldTransform) (Value, error) {
	switch v.kind {
	case KindObject:
		newFields := make(map[string]Value, len(v.object))
		for _, k := range v.keys {
			child := v.object[k]

			replaced, err := transform(k, child)
			if err != nil {
				return Value{}, err
			}

			walked, err := Walk(replaced, transform)
			if err != nil {
				return Value{}, err
			}
			newFields[k] = walked
		}
		return Object(v.keys, newFields), nil

	case KindArray:
		newItems := make([]Value, len(v.array))
		for i, item := range v.array {
			walked, err := Walk(item, transform)
			if err != nil {
				return Value{}, err
			}
			newItems[i] = walked
		}
		return Array(newItems), nil

	default:
		return v, nil
	}
}
