package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxSessionIDLen = 128

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ResolveSessionID returns id, trimmed, or a new random id when id is empty.
// Ids are limited to letters, digits and ._:- so they are safe in URLs and
// log fields.
func ResolveSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString(), nil
	}
	if len(id) > maxSessionIDLen {
		return "", fmt.Errorf("%w: session id longer than %d characters", ErrInvalidRequest, maxSessionIDLen)
	}
	if !sessionIDRe.MatchString(id) {
		return "", fmt.Errorf("%w: session id has invalid characters", ErrInvalidRequest)
	}
	return id, nil
}
