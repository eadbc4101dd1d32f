package common

// WipeByteArray zeroes b so secrets such as passwords do not linger in
// memory. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
