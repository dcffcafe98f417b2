package registry

import (
	"strconv"
	"strings"
)

// IsNewer reports whether latest is a higher dotted version than current.
// Pre-release and build suffixes are ignored; segments that are not numbers
// are dropped and missing trailing segments count as zero.
func IsNewer(current, latest string) bool {
	c := versionParts(current)
	l := versionParts(latest)

	for i := 0; i < max(len(c), len(l)); i++ {
		var cv, lv uint64
		if i < len(c) {
			cv = c[i]
		}
		if i < len(l) {
			lv = l[i]
		}
		if lv != cv {
			return lv > cv
		}
	}
	return false
}

func versionParts(v string) []uint64 {
	v = strings.TrimLeft(strings.TrimSpace(v), "vV")

	var parts []uint64
	for _, segment := range strings.Split(v, ".") {
		if i := strings.IndexAny(segment, "-+"); i >= 0 {
			segment = segment[:i]
		}
		n, err := strconv.ParseUint(segment, 10, 64)
		if err != nil {
			continue
		}
		parts = append(parts, n)
	}
	return parts
}
