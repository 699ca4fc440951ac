package memory

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
