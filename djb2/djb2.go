// Package djb2 implements the djb2 string hash used to resolve named
// groups inside a JS5 index.
package djb2

// Hash computes the djb2 hash of s: h starts at 0 and each byte folds in
// as h = h*31 + b, with 32-bit wrapping arithmetic. The multiply is done
// as (h<<5 - h) rather than h*31, matching the canonical djb2 shortcut.
func Hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + uint32(s[i])
	}
	return h
}
