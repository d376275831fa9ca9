package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	testCases := []struct {
		path string
		slug string
		url  string
	}{
		{"", "", "/"},
		{"", "ignored", "/"},
		{"/", "users", "/users"},
		{"/users", "bob", "/users/bob"},
		{"/users/bob", "settings", "/users/bob/settings"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.url, URL(tc.path, tc.slug))
	}
}

func TestDecompose(t *testing.T) {
	testCases := []struct {
		url  string
		path string
		slug string
	}{
		{"/", "", ""},
		{"/users", "/", "users"},
		{"/users/bob", "/users", "bob"},
		{"/a/b/c", "/a/b", "c"},
	}
	for _, tc := range testCases {
		path, slug := Decompose(tc.url)
		assert.Equal(t, tc.path, path, tc.url)
		assert.Equal(t, tc.slug, slug, tc.url)
	}
}

// every url survives a decompose/recompose round trip
func TestURLRoundTrip(t *testing.T) {
	for _, url := range []string{"/", "/users", "/users/bob", "/a/b/c/d"} {
		path, slug := Decompose(url)
		assert.Equal(t, url, URL(path, slug))
	}
}

func TestParents(t *testing.T) {
	assert.Equal(t, []PathSlug{{Path: ""}}, Parents("/"))

	assert.Equal(t, []PathSlug{{Path: ""}}, Parents("/users"))

	assert.Equal(t, []PathSlug{
		{Path: "/", Slug: "users"},
		{Path: ""},
	}, Parents("/users/bob"))

	assert.Equal(t, []PathSlug{
		{Path: "/a", Slug: "b"},
		{Path: "/", Slug: "a"},
		{Path: ""},
	}, Parents("/a/b/c"))
}

func TestParentURLs(t *testing.T) {
	assert.Nil(t, ParentURLs("/"))
	assert.Equal(t, []string{"/users", "/"}, ParentURLs("/users"))
	assert.Equal(t, []string{"/a/b/c", "/a/b", "/a", "/"}, ParentURLs("/a/b/c"))
}

func TestSlugify(t *testing.T) {
	testCases := []struct {
		source string
		slug   string
	}{
		{"Alice", "alice"},
		{"Hello World", "hello-world"},
		{"  lots   of   spaces  ", "lots-of-spaces"},
		{"Crème Brûlée", "creme-brulee"},
		{"Über Ünit 42", "uber-unit-42"},
		{"already-a-slug", "already-a-slug"},
		{"Mixed_CASE and.dots", "mixed-case-and-dots"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.slug, Slugify(tc.source), tc.source)
	}
}
