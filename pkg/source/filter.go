package source

import "strings"

// Filter narrows collected papers by keyword and category.
type Filter struct {
	keywords   []string
	exclude    []string
	categories map[string]bool
}

// NewFilter creates a filter. Empty keywords match every paper; empty
// categories allow every category. Exclusions always win.
func NewFilter(keywords, exclude, categories []string) *Filter {
	f := &Filter{categories: make(map[string]bool)}

	// Lowercase all keywords for case-insensitive matching.
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			f.keywords = append(f.keywords, kw)
		}
	}
	for _, kw := range exclude {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			f.exclude = append(f.exclude, kw)
		}
	}
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			f.categories[c] = true
		}
	}
	return f
}

// Match reports whether p passes the filter.
func (f *Filter) Match(p Paper) bool {
	if f == nil {
		return true
	}
	if len(f.categories) > 0 && !f.inCategories(p.Categories) {
		return false
	}
	return f.MatchText(p.Title + " " + p.Abstract)
}

// MatchText applies the keyword rules to free text.
func (f *Filter) MatchText(text string) bool {
	lower := strings.ToLower(text)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}

	if len(f.keywords) == 0 {
		return true
	}
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (f *Filter) inCategories(cats []string) bool {
	for _, c := range cats {
		if f.categories[c] {
			return true
		}
	}
	return false
}
