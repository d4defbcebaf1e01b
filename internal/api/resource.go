package api

// Field helpers for schemaless resources. Missing or mistyped keys read
// as zero values, the same leniency the portal's own tooling shows.

// String reads a string field.
func String(r Resource, key string) string {
	s, _ := r[key].(string)
	return s
}

// Strings reads a field holding a list of strings.
func Strings(r Resource, key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Objects reads a field holding a list of nested objects.
func Objects(r Resource, key string) []Resource {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Resource, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
