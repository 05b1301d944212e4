package model

// Page is a limit/offset window over an ordered listing.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit to [1,max] (def when unset) and offset to >= 0.
func NewPage(limit, offset, def, max int) Page {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
