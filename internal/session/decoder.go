package session

import (
	"net/http"
	"strconv"
	"strings"
)

// Hint is the destination triple decoded from a session token. Only Port
// carries routing meaning; Prefix and Suffix are opaque tags (worker
// identity, anti-cache nonce) preserved for external inspection.
type Hint struct {
	Prefix string
	Port   int
	Suffix string
}

// Decode inspects the request's query string and raw Cookie header for a
// session token and returns the worker hint it encodes. The query string is
// searched first, then the cookie. A token with the expected shape but a
// non-numeric port segment resolves to fallbackPort instead of failing the
// decode. A nil result means the request carries no usable hint.
//
// Decode is a pure function over already-buffered request metadata: it
// never validates liveness of the decoded port, that is the caller's job.
func Decode(r *http.Request, fallbackPort int) *Hint {
	if r.Host == "" {
		return nil
	}

	query := r.URL.RawQuery
	cookie := r.Header.Get("Cookie")
	if query == "" && cookie == "" {
		return nil
	}

	token, ok := findToken(query)
	if !ok {
		token, ok = findToken(cookie)
	}
	if !ok {
		return nil
	}

	return parseToken(token, fallbackPort)
}

// findToken locates a sid= (or ssid=) parameter in s. The parameter name
// must sit at the start of the string or after a non-alphanumeric byte, and
// the value runs up to the next semicolon.
func findToken(s string) (string, bool) {
	for i := 0; i+4 <= len(s); i++ {
		if s[i:i+4] != "sid=" {
			continue
		}

		start := i
		if start > 0 && s[start-1] == 's' {
			start--
		}
		if start > 0 && isAlphanumeric(s[start-1]) {
			continue
		}

		value := s[i+4:]
		if sep := strings.IndexByte(value, ';'); sep >= 0 {
			value = value[:sep]
		}
		return value, true
	}
	return "", false
}

// parseToken splits a token of the form prefix_port_suffix_rest. Anything
// without three non-empty leading segments carries no hint.
func parseToken(token string, fallbackPort int) *Hint {
	parts := strings.SplitN(token, "_", 4)
	if len(parts) != 4 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil {
		port = fallbackPort
	}

	return &Hint{Prefix: parts[0], Port: port, Suffix: parts[2]}
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
