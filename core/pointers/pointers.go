// Package pointers holds small helpers for optional query members.
package pointers

// String returns a pointer to str. Queries use it to address the root
// node, whose path is the empty string.
func String(str string) *string {
	return &str
}

// SafeString returns the value from ptr or "" if the pointer is nil.
func SafeString(ptr *string) string {
	if ptr != nil {
		return *ptr
	}
	return ""
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// SafeBool returns the value from ptr or false if the pointer is nil.
func SafeBool(ptr *bool) bool {
	if ptr != nil {
		return *ptr
	}
	return false
}
