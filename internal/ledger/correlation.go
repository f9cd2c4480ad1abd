package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrBadPrefix      = errors.New("invalid correlation prefix")
	ErrBadCorrelation = errors.New("invalid correlation token")
)

// Correlation links a remote document to the local record it was built from.
type Correlation struct {
	Prefix string
	ID     int64
}

func NewCorrelation(prefix string, id int64) Correlation {
	return Correlation{Prefix: prefix, ID: id}
}

// Token is the string sent to the remote and echoed back.
func (c Correlation) Token() string {
	return c.Prefix + strconv.FormatInt(c.ID, 10)
}

func (c Correlation) String() string {
	return c.Token()
}

// ValidatePrefix rejects prefixes that would make tokens ambiguous: empty
// prefixes, prefixes ending in a digit and prefixes containing whitespace.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: prefix is empty", ErrBadPrefix)
	}
	last := prefix[len(prefix)-1]
	if last >= '0' && last <= '9' {
		return fmt.Errorf("%w: %q ends with a digit", ErrBadPrefix, prefix)
	}
	if strings.IndexFunc(prefix, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrBadPrefix, prefix)
	}
	return nil
}

// ParseCorrelation recovers the local ID from a token built with prefix.
//
// The remainder after the prefix must be a canonical positive decimal: no
// sign, no leading zero, digits only. Anything else is ErrBadCorrelation.
func ParseCorrelation(prefix, token string) (int64, error) {
	rest, ok := strings.CutPrefix(token, prefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q does not start with %q", ErrBadCorrelation, token, prefix)
	}
	if rest == "" || rest[0] == '0' {
		return 0, fmt.Errorf("%w: %q has no local ID", ErrBadCorrelation, token)
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, fmt.Errorf("%w: %q has a non-numeric local ID", ErrBadCorrelation, token)
		}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrBadCorrelation, token, err)
	}
	return id, nil
}
