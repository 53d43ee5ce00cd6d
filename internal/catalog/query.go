package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Query selects one page of the catalog.
type Query struct {
	Term   string
	Offset int
	Limit  int
}

// Range returns the inclusive row range for a 1-indexed page.
// Page 2 with size 10 covers rows 10..19.
func Range(page, size int) (from, to int) {
	if page < 1 {
		page = 1
	}
	from = (page - 1) * size
	return from, from + size - 1
}

// PageQuery builds the Query for a 1-indexed page.
func PageQuery(page, size int, term string) Query {
	from, _ := Range(page, size)
	return Query{Term: strings.TrimSpace(term), Offset: from, Limit: size}
}

// where renders the search predicate and its arguments, numbered from $1.
func (q Query) where() (string, []any) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return "", nil
	}
	args := []any{"%" + escapeLike(term) + "%"}
	cond := `(name ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'`
	if id, err := strconv.ParseInt(term, 10, 64); err == nil {
		args = append(args, id)
		cond += fmt.Sprintf(" OR product_id = $%d", len(args))
	}
	return " WHERE " + cond + ")", args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
