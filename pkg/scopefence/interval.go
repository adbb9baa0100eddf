package scopefence

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval is a configured refill period as written in the config file:
// a unit name ("second", "minute", "hour", "day" and their short forms),
// a millisecond count, or a Go duration string such as "500ms".
//
// Decoding only records the raw value. Resolution happens when a bucket is
// built, so an unknown unit fails filter construction rather than parsing.
type Interval string

var intervalUnits = map[string]time.Duration{
	"second": time.Second,
	"sec":    time.Second,
	"s":      time.Second,
	"minute": time.Minute,
	"min":    time.Minute,
	"m":      time.Minute,
	"hour":   time.Hour,
	"hr":     time.Hour,
	"h":      time.Hour,
	"day":    24 * time.Hour,
	"d":      24 * time.Hour,
}

// Milliseconds returns an Interval holding an explicit millisecond count.
func Milliseconds(ms int64) Interval {
	return Interval(strconv.FormatInt(ms, 10))
}

// IsZero reports whether no interval was configured.
func (i Interval) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

// Duration resolves the interval to a positive duration.
func (i Interval) Duration() (time.Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(string(i)))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty interval", ErrInvalidInterval)
	}

	if d, ok := intervalUnits[raw]; ok {
		return d, nil
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("%w: %d milliseconds", ErrInvalidInterval, ms)
		}
		if ms > math.MaxInt64/int64(time.Millisecond) {
			return 0, fmt.Errorf("%w: %d milliseconds is too long", ErrInvalidInterval, ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, string(i))
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, string(i))
	}
	return d, nil
}

// UnmarshalYAML accepts both scalar strings and numbers.
func (i *Interval) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("interval must be a scalar, got %s", nodeKind(node))
	}
	if node.ShortTag() == "!!null" {
		*i = ""
		return nil
	}
	*i = Interval(node.Value)
	return nil
}

// UnmarshalJSON accepts both strings and numbers.
func (i *Interval) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Interval(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("interval must be a string or a number: %w", err)
	}
	*i = Interval(n.String())
	return nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
