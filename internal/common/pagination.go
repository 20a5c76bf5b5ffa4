package common

import "net/http"

// MaxPerPage caps the limit query parameter.
const MaxPerPage = 100

// ParsePagination extracts page and per-page parameters from query values.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	q := r.URL.Query()
	page = AtoiDefault(q.Get("page"), 1)
	perPage = AtoiDefault(q.Get("limit"), defaultPerPage)
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
