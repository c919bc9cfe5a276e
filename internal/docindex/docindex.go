// Package docindex specifies the documentation-search contract (A9).
// Building and indexing a documentation site is out of scope for this
// module; only the interface a future implementation would satisfy is
// declared here.
package docindex

import "context"

// Hit is one documentation search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
	Score   float64
}

// Index searches a documentation corpus. No implementation ships in
// this module.
type Index interface {
	Search(ctx context.Context, query string) ([]Hit, error)
}
