package utils

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// FirstNonEmpty returns the first non-empty string pointed to by values.
func FirstNonEmpty(values ...*string) string {
	for _, v := range values {
		if s := Value(v); s != "" {
			return s
		}
	}
	return ""
}
