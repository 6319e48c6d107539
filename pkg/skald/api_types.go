package skald

type (
	Pagination struct {
		Offset uint `uri:"offset" form:"offset" json:"offset" yaml:"offset" xml:"offset"`
		Limit  uint `uri:"limit" form:"limit" json:"limit" yaml:"limit" xml:"limit"`
	}

	// SearchQuery captures the query-string knobs of a collection read.
	// `author`, `published` and `search` select the post-specific list
	// variants; plain CRUD collections ignore them.
	SearchQuery struct {
		Pagination `uri:",inline" form:",inline"`

		Author    string `uri:"author" form:"author" json:"author,omitempty"`
		Published bool   `uri:"published" form:"published" json:"published,omitempty"`
		Search    string `uri:"search" form:"search" json:"search,omitempty"`
	}

	ResourceRequest struct {
		ID ResourceID `uri:"id" form:"id" binding:"required"`
	}

	// PageResult is one bounded slice of an ordered collection plus the
	// collection total. The total is read concurrently with the page and
	// may lag it under concurrent writes.
	PageResult[T any] struct {
		Items   []T   `form:"items" json:"items" yaml:"items" xml:"items"`
		Total   int64 `form:"total" json:"total" yaml:"total" xml:"total"`
		HasMore bool  `form:"hasMore" json:"hasMore" yaml:"hasMore" xml:"hasMore"`
	}

	ErrorResponse struct {
		Code    string `json:"code" yaml:"code" xml:"code"`
		Message string `json:"message" yaml:"message" xml:"message"`
	}

	// AuthResponse is returned by register and login: a bearer token plus
	// the account it identifies.
	AuthResponse struct {
		Token   string  `json:"token" yaml:"token" xml:"token"`
		Account Account `json:"account" yaml:"account" xml:"account"`
	}
)

func (p *Pagination) ClampLimit(maxLimit uint) {
	if p.Limit > maxLimit || p.Limit == 0 {
		p.Limit = maxLimit
	}
}

// HasMore reports whether another page exists past this one.
func (p Pagination) HasMore(total int64) bool {
	return int64(p.Offset)+int64(p.Limit) < total
}

func NewPageResult[T any](items []T, total int64, page Pagination) PageResult[T] {
	return PageResult[T]{
		Items:   items,
		Total:   total,
		HasMore: page.HasMore(total),
	}
}
