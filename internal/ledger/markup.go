package ledger

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// StripMarkup returns the text content of an HTML fragment: tags and comments
// are dropped, entities decoded, the result NFC-normalised and runs of
// whitespace collapsed to a single space.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return normalizeText(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
