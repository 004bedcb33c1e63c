package homie

import (
	"fmt"
	"strings"
)

// Validates that an ID conforms to the Homie standard: lower case
// letters, digits and hyphens, not starting with a hyphen.  Upper case
// input is folded to lower case.  Attribute names may carry a leading
// '$'.  Invalid ids are programming errors and panic.

func validate(inputId string, attr bool) string {
	if len(inputId) < 1 {
		panic("Invalid use of null identifier")
	}

	id := strings.ToLower(inputId)

	if id[0] == '-' {
		panic("Identifier may not begin with '-'")
	}

	for i, b := range []byte(id) {
		switch {
		case b >= 'a' && b <= 'z':
		case b >= '0' && b <= '9':
		case b == '-':
		case b == '$' && i == 0 && attr:
		default:
			panic(fmt.Sprintf("Invalid character %c (%d) in identifier %q", b, b, inputId))
		}
	}

	return id
}
