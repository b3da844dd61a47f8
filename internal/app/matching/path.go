package matching

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const wildcard = "*"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// Path is a tokenised location in a request or response tree, e.g.
// $.body.items[0].id is {"$", "body", "items", "[0]", "id"}. Array indices
// keep their brackets so they can never collide with object keys.
type Path []string

func Root(segments ...string) Path {
	return append(Path{"$"}, segments...)
}

// Field returns a copy of p extended with an object key.
func (p Path) Field(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, key)
}

// Item returns a copy of p extended with an array index.
func (p Path) Item(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, "["+strconv.Itoa(i)+"]")
}

// AnyItem returns a copy of p extended with the [*] array wildcard.
func (p Path) AnyItem() Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, "[*]")
}

func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		switch {
		case i == 0:
			sb.WriteString(seg)
		case strings.HasPrefix(seg, "["):
			sb.WriteString(seg)
		case seg == wildcard || identifier.MatchString(seg):
			sb.WriteString(".")
			sb.WriteString(seg)
		default:
			sb.WriteString("['")
			sb.WriteString(seg)
			sb.WriteString("']")
		}
	}
	return sb.String()
}

// ParsePath tokenises a rule path expression such as $.body.items[*].id or
// $.body['first name']. Header names are allowed to contain dashes.
func ParsePath(expr string) (Path, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, errors.Errorf("path %q must start with $", expr)
	}
	path := Path{"$"}
	rest := expr[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			seg := rest[:end]
			if seg == "" {
				return nil, errors.Errorf("path %q has an empty segment", expr)
			}
			path = append(path, seg)
			rest = rest[end:]
		case '[':
			end := strings.Index(rest, "]")
			if end < 0 {
				return nil, errors.Errorf("path %q has an unterminated bracket", expr)
			}
			inner := rest[1:end]
			switch {
			case inner == wildcard:
				path = append(path, "[*]")
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"'):
				path = append(path, inner[1:len(inner)-1])
			default:
				if _, err := strconv.Atoi(inner); err != nil {
					return nil, errors.Errorf("path %q has an invalid index %q", expr, inner)
				}
				path = append(path, "["+inner+"]")
			}
			rest = rest[end+1:]
		default:
			return nil, errors.Errorf("path %q has unexpected character %q", expr, rest[0])
		}
	}
	return path, nil
}

// weight scores how well pattern matches the concrete path. Exact segments
// outweigh wildcards; zero means no match. Header names compare case
// insensitively.
func (p Path) weight(concrete Path) int {
	if len(p) > len(concrete) {
		return 0
	}
	w := 1
	for i, seg := range p {
		actual := concrete[i]
		switch {
		case seg == actual:
			w *= 2
		case i == 2 && len(p) > 1 && p[1] == "header" && strings.EqualFold(seg, actual):
			w *= 2
		case seg == "[*]" && strings.HasPrefix(actual, "["):
		case seg == wildcard && !strings.HasPrefix(actual, "["):
		default:
			return 0
		}
	}
	return w
}
