package conn

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

// identPlaceholder marks where FormatQuery inserts a quoted identifier.
const identPlaceholder = "{}"

// FormatQuery substitutes each "{}" in query with the next identifier,
// quoted as a SQL identifier. Values must still be passed as bound
// parameters; FormatQuery is for table and column names only.
//
// A placeholder/identifier count mismatch is a programming error and panics
// with a *ir.BadCodingError.
func FormatQuery(query string, identifiers ...string) string {
	if n := strings.Count(query, identPlaceholder); n != len(identifiers) {
		panic(&ir.BadCodingError{
			Message: fmt.Sprintf("query has %d identifier placeholders, got %d identifiers", n, len(identifiers)),
		})
	}

	var b strings.Builder
	b.Grow(len(query) + 8*len(identifiers))
	rest := query
	for _, ident := range identifiers {
		before, after, _ := strings.Cut(rest, identPlaceholder)
		b.WriteString(before)
		b.WriteString(pq.QuoteIdentifier(ident))
		rest = after
	}
	b.WriteString(rest)
	return b.String()
}
