// Package textutil provides filename text helpers: sanitization of
// filesystem-unsafe characters and grapheme-safe truncation to a byte
// budget.
package textutil
