package catalog

// Pagination mirrors the pagination block of a catalog API response.
type Pagination struct {
	Total       int `json:"total"`
	Limit       int `json:"limit"`
	Offset      int `json:"offset"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}

// Response is the envelope returned by the /artworks endpoint.
type Response struct {
	Pagination Pagination `json:"pagination"`
	Data       []Record   `json:"data"`
}

// Page is one normalized page of the catalog.
type Page struct {
	// Number is the 1-based page index that was requested.
	Number     int        `json:"page"`
	Items      []Item     `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// IsLast reports whether the API says no page follows this one.
// A zero TotalPages means the API did not say.
func (p *Page) IsLast() bool {
	return p.Pagination.TotalPages > 0 && p.Number >= p.Pagination.TotalPages
}

// PageFromResponse normalizes an API response for the given page number.
func PageFromResponse(number int, resp Response) *Page {
	return &Page{
		Number:     number,
		Items:      NormalizeAll(resp.Data),
		Pagination: resp.Pagination,
	}
}
