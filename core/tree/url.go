package tree

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PathSlug addresses a node by its parent url and slug. The root
// sentinel has an empty Path and no Slug.
type PathSlug struct {
	Path string
	Slug string
}

// URL derives a node url from its path and slug. The root has an empty
// path and maps to "/".
func URL(path, slug string) string {
	switch path {
	case "":
		return "/"
	case "/":
		return "/" + slug
	default:
		return path + "/" + slug
	}
}

// Decompose splits a url into the parent path and the trailing slug.
// "/" decomposes into the root sentinel ("", "").
func Decompose(url string) (path, slug string) {
	if url == "/" {
		return "", ""
	}
	i := strings.LastIndex(url, "/")
	if i < 0 {
		return "", url
	}
	path = url[:i]
	if path == "" {
		path = "/"
	}
	return path, url[i+1:]
}

// Parents enumerates the ancestor addresses of a url, from the
// immediate parent up to the root sentinel. For "/" it returns just the
// sentinel.
func Parents(url string) []PathSlug {
	if url == "/" {
		return []PathSlug{{Path: ""}}
	}
	var parents []PathSlug
	current, _ := Decompose(url)
	for current != "/" && current != "" {
		path, slug := Decompose(current)
		parents = append(parents, PathSlug{Path: path, Slug: slug})
		current = path
	}
	return append(parents, PathSlug{Path: ""})
}

// ParentURLs lists the url itself and every ancestor url down to "/".
// The root url has no parents and yields nil.
func ParentURLs(url string) []string {
	if url == "/" {
		return nil
	}
	var urls []string
	for url != "" {
		urls = append(urls, url)
		url = url[:strings.LastIndex(url, "/")]
	}
	return append(urls, "/")
}

var slugFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives a url-safe identifier from a raw source string:
// NFKD fold, combining marks stripped, lowercased, every run of
// non-alphanumerics collapsed into a single hyphen.
func Slugify(source string) string {
	folded, _, err := transform.String(slugFold, source)
	if err != nil {
		folded = source
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r + ('a' - 'A'))
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
