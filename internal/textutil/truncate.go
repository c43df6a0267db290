package textutil

import (
	"strings"

	"github.com/rivo/uniseg"
)

// Ellipsis marks a truncated name.
const Ellipsis = "…"

// TruncateBytes shortens s so that its UTF-8 length is strictly below limit.
// Cuts happen on grapheme cluster boundaries and are marked with Ellipsis.
// Strings already below the limit are returned unchanged.
func TruncateBytes(s string, limit int) string {
	if len(s) < limit {
		return s
	}
	budget := limit - len(Ellipsis)
	if budget <= 0 {
		return ""
	}
	var b strings.Builder
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		cluster := gr.Str()
		if b.Len()+len(cluster) >= budget {
			break
		}
		b.WriteString(cluster)
	}
	return strings.TrimRight(b.String(), " ") + Ellipsis
}
