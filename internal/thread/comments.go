package thread

import (
	"sort"

	"commentary/api/internal/store"
)

// Page is one page of an ordered comment listing.
type Page struct {
	Comments   []store.Comment
	Number     int
	PerPage    int
	Total      int
	TotalPages int
}

// CommentView filters, orders and paginates the comments of one thread.
type CommentView struct {
	config   Config
	comments []store.Comment
}

// NewCommentView keeps comments in the order given; that order is the
// "natural" order used for unrecognized sort modes.
func NewCommentView(config Config, comments []store.Comment) CommentView {
	return CommentView{config: config, comments: comments}
}

func (v CommentView) Filtered(showAll bool) []store.Comment {
	filter := v.config.CommentFilter
	if showAll || filter == nil {
		return append([]store.Comment(nil), v.comments...)
	}
	out := make([]store.Comment, 0, len(v.comments))
	for _, c := range v.comments {
		if filter(c) {
			out = append(out, c)
		}
	}
	return out
}

// Ordered returns Filtered(showAll) sorted by the configured order. The vote
// orders rank by (down - up) ascending, so the highest net score comes first.
func (v CommentView) Ordered(showAll bool) []store.Comment {
	items := v.Filtered(showAll)
	var less func(a, b store.Comment) bool
	switch v.config.CommentOrder {
	case OrderLatest:
		less = func(a, b store.Comment) bool { return a.CreatedAt.After(b.CreatedAt) }
	case OrderEarliest:
		less = func(a, b store.Comment) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case OrderVotesEarliest:
		less = func(a, b store.Comment) bool {
			if a.NetScore() != b.NetScore() {
				return a.NetScore() > b.NetScore()
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case OrderVotesLatest:
		less = func(a, b store.Comment) bool {
			if a.NetScore() != b.NetScore() {
				return a.NetScore() > b.NetScore()
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	default:
		return items
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
	return items
}

// Paginate returns the 1-based page of Ordered(showAll). perPage of zero
// selects the configured page size. With pagination disabled the whole
// ordered listing is returned as a single page.
func (v CommentView) Paginate(page, perPage int, showAll bool) Page {
	ordered := v.Ordered(showAll)
	total := len(ordered)
	if v.config.CommentsPerPage <= 0 {
		return Page{Comments: ordered, Number: 1, PerPage: total, Total: total, TotalPages: 1}
	}
	if perPage <= 0 {
		perPage = v.config.CommentsPerPage
	}
	if page < 1 {
		page = 1
	}

	totalPages := ceilDiv(total, perPage)
	if totalPages == 0 {
		totalPages = 1
	}
	if page > totalPages {
		return Page{Comments: ordered[total:], Number: page, PerPage: perPage, Total: total, TotalPages: totalPages}
	}
	// page <= totalPages keeps start below total, so neither bound overflows.
	start := (page - 1) * perPage
	end := total
	if perPage < total-start {
		end = start + perPage
	}
	return Page{
		Comments:   ordered[start:end],
		Number:     page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// LocatePage returns the page a newly created comment lands on. A perPage of
// exactly zero stands for "not supplied" and selects the configured page
// size, so LocatePage(0) is not page 1 unless the configured size puts it
// there. A negative size or disabled pagination yields page 1.
func (v CommentView) LocatePage(perPage int) int {
	if v.config.CommentsPerPage <= 0 {
		return 1
	}
	if perPage == 0 {
		perPage = v.config.CommentsPerPage
	}
	if perPage <= 0 {
		return 1
	}

	filtered := v.Filtered(false)
	var rank int
	switch v.config.CommentOrder {
	case OrderLatest:
		rank = 1
	case OrderVotesEarliest:
		// tail of the zero-score group
		rank = countScore(filtered, func(score int) bool { return score >= 0 })
	case OrderVotesLatest:
		// head of the zero-score group
		rank = countScore(filtered, func(score int) bool { return score > 0 }) + 1
	default:
		rank = len(filtered)
	}

	if page := ceilDiv(rank, perPage); page > 1 {
		return page
	}
	return 1
}

func countScore(comments []store.Comment, match func(int) bool) int {
	n := 0
	for _, c := range comments {
		if match(c.NetScore()) {
			n++
		}
	}
	return n
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
