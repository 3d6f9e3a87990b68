// Package sanitize strips unsafe HTML from user-authored text fields before
// they are written.
package sanitize

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"
)

// The policy allows basic user-generated formatting (paragraphs, emphasis,
// lists, links) and drops everything executable.
var policy = bluemonday.UGCPolicy()

// Clean sanitizes one field value. Nil becomes the empty string and
// non-string values are stringified first, so a sanitized value is always a
// safe string. Sanitizing an already-sanitized value is a no-op.
func Clean(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return policy.Sanitize(v)
	default:
		return policy.Sanitize(fmt.Sprint(v))
	}
}
