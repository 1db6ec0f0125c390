package services

import (
	"context"
	"math"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"kbase/pkg/models"
)

// Match is one search hit: the key of the matching document and a
// plain-text excerpt around the first occurrence of the query.
type Match struct {
	Key     string `json:"key"`
	Snippet string `json:"snippet"`
}

// Snippet context on each side of the first occurrence, in characters.
const snippetRadius = 50

// ScanContent walks docs in order, looking for query as a
// case-insensitive substring of each document's markup-stripped text.
// Matches arrive on the first channel as they are found; the second
// carries the progress percentage after every document (a single 100 when
// docs is empty). Only the first occurrence per document is reported.
//
// The scan runs in its own goroutine and does not block the caller. Both
// channels are closed when the scan completes; cancelling ctx stops the
// scan without any further emission.
func ScanContent(ctx context.Context, docs []models.Document, query string) (<-chan Match, <-chan int) {
	matches := make(chan Match)
	progress := make(chan int)

	go func() {
		defer close(matches)
		defer close(progress)

		total := len(docs)
		if total == 0 {
			select {
			case progress <- 100:
			case <-ctx.Done():
			}
			return
		}

		needle := []rune(strings.ToLower(query))
		for i, doc := range docs {
			if ctx.Err() != nil {
				return
			}
			plain := []rune(StripMarkup(doc.HTML))
			if at := foldIndex(plain, needle); at >= 0 {
				m := Match{Key: doc.Key, Snippet: snippet(plain, at)}
				select {
				case matches <- m:
				case <-ctx.Done():
					return
				}
			}
			pct := int(math.Round(float64(i+1) / float64(total) * 100))
			select {
			case progress <- pct:
			case <-ctx.Done():
				return
			}
		}
	}()

	return matches, progress
}

// foldIndex finds the first case-insensitive occurrence of needle (already
// lower-cased) in haystack, in runes so multi-byte text indexes cleanly.
func foldIndex(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		ok := true
		for j := range needle {
			if unicode.ToLower(haystack[i+j]) != needle[j] {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

func snippet(text []rune, at int) string {
	start := at - snippetRadius
	if start < 0 {
		start = 0
	}
	end := at + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	return string(text[start:end])
}

// StripMarkup extracts the visible text of an HTML fragment, skipping
// script and style bodies. Plain text comes back unchanged.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isHidden(tag string) bool {
	return tag == "script" || tag == "style"
}
