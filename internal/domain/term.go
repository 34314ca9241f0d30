package domain

import (
	"fmt"
	"strconv"
)

// ValidateTermFormat checks that term is a 4-digit code. Stored requests only
// need this: a code for a season that does not exist simply finds nothing upstream.
func ValidateTermFormat(term string) error {
	if len(term) != 4 {
		return ErrValidationMeta("term must be 4 digits (e.g. 2261 for Spring 2026)", map[string]string{"term": term})
	}
	for _, c := range term {
		if c < '0' || c > '9' {
			return ErrValidationMeta("term must be 4 digits (e.g. 2261 for Spring 2026)", map[string]string{"term": term})
		}
	}
	return nil
}

// ValidateTerm is the stricter rule for new requests: 4 digits ending in a
// season digit, e.g. 2261.
func ValidateTerm(term string) error {
	if err := ValidateTermFormat(term); err != nil {
		return err
	}
	switch term[3] {
	case '1', '4', '7':
	default:
		return ErrValidationMeta("term must end in 1 (Spring), 4 (Summer) or 7 (Fall)", map[string]string{"term": term})
	}
	return nil
}

// TermName renders a term code as "Spring 2026". Invalid codes are returned as-is.
func TermName(term string) string {
	if ValidateTerm(term) != nil {
		return term
	}
	code, _ := strconv.Atoi(term[:3])
	season := map[byte]string{'1': "Spring", '4': "Summer", '7': "Fall"}[term[3]]
	return fmt.Sprintf("%s %d", season, 1800+code)
}
