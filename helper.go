package configman

import "strings"

// flattenMap converts a nested map[string]any to a flat map[string]any with dot-notation paths.
func flattenMap(nested map[string]any, prefix string) map[string]any {
	flat := make(map[string]any)
	for key, value := range nested {
		newPath := joinPath(prefix, key)
		if nestedMap, isMap := value.(map[string]any); isMap && len(nestedMap) > 0 {
			for subPath, subValue := range flattenMap(nestedMap, newPath) {
				flat[subPath] = subValue
			}
		} else {
			flat[newPath] = value
		}
	}
	return flat
}

// flattenAgainst flattens nested like flattenMap but stops descending at
// paths that are Options in tree, so map valued Options keep their map.
func flattenAgainst(tree *Namespace, nested map[string]any, prefix string) map[string]any {
	flat := make(map[string]any)
	for key, value := range nested {
		newPath := joinPath(prefix, key)
		if _, isOpt := tree.Lookup(newPath); isOpt {
			flat[newPath] = value
			continue
		}
		if nestedMap, isMap := value.(map[string]any); isMap {
			// an empty section contributes nothing
			for subPath, subValue := range flattenAgainst(tree, nestedMap, newPath) {
				flat[subPath] = subValue
			}
		} else {
			flat[newPath] = value
		}
	}
	return flat
}

// setNestedValue sets a value in a nested map using a dot-notation path.
// It creates intermediate maps if they don't exist.
// If a segment exists but is not a map, it will be overwritten by a new map.
func setNestedValue(nested map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := nested

	for _, segment := range segments[:len(segments)-1] {
		if next, isMap := current[segment].(map[string]any); isMap {
			current = next
			continue
		}
		newMap := make(map[string]any)
		current[segment] = newMap
		current = newMap
	}

	lastSegment := segments[len(segments)-1]
	if _, isMap := value.(map[string]any); isMap {
		// keep children already placed under a namespace path
		if existing, ok := current[lastSegment].(map[string]any); ok && len(existing) > 0 {
			return
		}
	}
	current[lastSegment] = value
}

// nestFlat turns a flat dotted-key map into nested maps.
func nestFlat(flat map[string]any) map[string]any {
	nested := make(map[string]any)
	for path, value := range flat {
		setNestedValue(nested, path, value)
	}
	return nested
}

// isValidKeySegment checks if a single path segment is a valid key part:
// ASCII letters, digits, underscores and dashes.
func isValidKeySegment(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !(isLetter || isDigit || r == '_' || r == '-') {
			return false
		}
	}
	return true
}
