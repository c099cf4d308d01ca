package dedup

import (
	"encoding/json"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
)

// MalformedKey is the natural key of a record whose key path does not
// resolve. It never names a bucket.
const MalformedKey = ""

// KeyPath is a parsed dotted path such as "commit.id".
type KeyPath struct {
	segments []string
}

// ParseKeyPath splits a dotted path into segments. Empty paths and empty
// segments are configuration errors.
func ParseKeyPath(dotted string) (KeyPath, error) {
	if dotted == "" {
		return KeyPath{}, apperrors.New(apperrors.ErrInvalidKeyPath, apperrors.ExitConfig, "key path is empty")
	}
	segments := strings.Split(dotted, ".")
	for i, seg := range segments {
		if seg == "" {
			return KeyPath{}, apperrors.Newf(apperrors.ErrInvalidKeyPath, apperrors.ExitConfig, "key path %q has an empty segment at position %d", dotted, i)
		}
	}
	return KeyPath{segments: segments}, nil
}

// MustParseKeyPath is ParseKeyPath for compile-time constants.
func MustParseKeyPath(dotted string) KeyPath {
	kp, err := ParseKeyPath(dotted)
	if err != nil {
		panic(err)
	}
	return kp
}

// IsZero reports whether the path was never parsed.
func (k KeyPath) IsZero() bool {
	return len(k.segments) == 0
}

// Top returns the first segment, the only field a scan needs to project.
func (k KeyPath) Top() string {
	if k.IsZero() {
		return ""
	}
	return k.segments[0]
}

func (k KeyPath) String() string {
	return strings.Join(k.segments, ".")
}

// Resolve walks the path through nested maps. It reports false when an
// intermediate value is not a map, a segment is missing, or the final value
// is not a scalar.
func (k KeyPath) Resolve(doc map[string]any) (string, bool) {
	if k.IsZero() || doc == nil {
		return "", false
	}
	var node any = doc
	for _, seg := range k.segments {
		m, ok := node.(map[string]any)
		if !ok {
			return "", false
		}
		node, ok = m[seg]
		if !ok {
			return "", false
		}
	}
	return scalarString(node)
}

// Extract returns the natural key of doc, or MalformedKey when the path does
// not resolve to a non-empty scalar.
func Extract(doc map[string]any, path KeyPath) string {
	key, ok := path.Resolve(doc)
	if !ok {
		return MalformedKey
	}
	return key
}

// scalarString renders scalars the way the store prints them. JSON numbers
// keep their original text.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
