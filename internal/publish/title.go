package publish

import (
	"golang.org/x/text/unicode/norm"

	"vidworker/internal/textutil"
)

// MaxTitleBytes bounds the UTF-8 length of an output title (exclusive).
const MaxTitleBytes = 150

// OutputTitle derives the published file stem for title. The result is
// always shorter than MaxTitleBytes bytes.
func OutputTitle(title string) string {
	name := textutil.SanitizeFileName(norm.NFC.String(title))
	if name == "" {
		name = "_"
	}
	return textutil.TruncateBytes(name, MaxTitleBytes)
}
