package remotedb

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/slatenotes/slate/internal/schema"
)

// snippetRadius is the number of runes kept on each side of a match.
const snippetRadius = 32

// SearchNotes returns up to limit notes whose title or plain text contains
// q, case-insensitively, most recently modified first.
func (db *DB) SearchNotes(ctx context.Context, q string, limit int) ([]*schema.SearchHit, error) {
	q = strings.TrimSpace(q)
	hits := []*schema.SearchHit{}
	if q == "" {
		return hits, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	notes, err := db.queryNotes(ctx, `SELECT `+noteColumns+` FROM notes
		WHERE LOWER(title) LIKE ? ESCAPE '\' OR LOWER(plain_text) LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, id
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}

	for _, n := range notes {
		hits = append(hits, &schema.SearchHit{Note: *n, Snippet: Snippet(n.PlainText, q)})
	}
	return hits, nil
}

// Snippet returns the text around the first case-insensitive match of q in
// text with the match wrapped in <mark> tags. Without a match it returns
// the start of text.
func Snippet(text, q string) string {
	lower, lq := strings.ToLower(text), strings.ToLower(q)
	idx := strings.Index(lower, lq)
	if idx < 0 || lq == "" || len(lower) != len(text) {
		return truncateRunes(text, 2*snippetRadius)
	}
	end := idx + len(lq)

	start := idx
	for i := 0; i < snippetRadius && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	stop := end
	for i := 0; i < snippetRadius && stop < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[stop:])
		stop += size
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(text[start:idx])
	b.WriteString("<mark>")
	b.WriteString(text[idx:end])
	b.WriteString("</mark>")
	b.WriteString(text[end:stop])
	if stop < len(text) {
		b.WriteString("...")
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
