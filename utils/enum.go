package utils

// CycleEnumPtr moves current by direction through 0..max, wrapping around.
func CycleEnumPtr[T ~int](current *T, direction int, max T) {
	*current = (*current + T(direction) + max + 1) % (max + 1)
}
