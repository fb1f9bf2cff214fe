package broker

import "strings"

// Matches reports whether routingKey is delivered to a binding with the given pattern
// on an exchange of the given kind. Topic patterns are dot separated: "*" matches exactly
// one segment and "#" matches zero or more.
func Matches(kind ExchangeKind, pattern, routingKey string) bool {
	switch kind {
	case KindFanout:
		return true
	case KindDirect:
		return pattern == routingKey
	default:
		return matchSegments(strings.Split(pattern, "."), strings.Split(routingKey, "."))
	}
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		// collapse consecutive hashes
		rest := pattern[1:]
		for len(rest) > 0 && rest[0] == "#" {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			return true
		}
		for i := 0; i <= len(key); i++ {
			if matchSegments(rest, key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchSegments(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchSegments(pattern[1:], key[1:])
	}
}

func validatePattern(kind ExchangeKind, pattern string) error {
	if kind == KindFanout {
		return nil
	}
	if strings.TrimSpace(pattern) == "" {
		return ErrInvalidPattern
	}
	return nil
}
