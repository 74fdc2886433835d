package condition

import "strings"

// Ratio computes a sequence-similarity ratio in [0,1] between two strings,
// matching the Ratcliff-Obershelp measure: 2*M/T where M is the total number
// of matched characters across recursive longest common substrings and T is
// the combined length.
func Ratio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	m := matchingBlocks(a, b)
	return 2.0 * float64(m) / float64(total)
}

func matchingBlocks(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	matched := size
	matched += matchingBlocks(a[:ai], b[:bi])
	matched += matchingBlocks(a[ai+size:], b[bi+size:])
	return matched
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// Standard dynamic program over suffix lengths.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
