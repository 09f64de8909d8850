package truenas

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var null = []byte("null")

// Number is a numeric field as the middleware sends it: a number, a numeric
// string ("1.52x" included), null, or a {"parsed": ..., "rawvalue": ...} wrapper.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = Number{}
	if len(b) == 0 || bytes.Equal(b, null) {
		return nil
	}
	switch b[0] {
	case '{':
		var wrapped struct {
			Parsed   json.RawMessage `json:"parsed"`
			Rawvalue json.RawMessage `json:"rawvalue"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if len(wrapped.Parsed) > 0 && !bytes.Equal(bytes.TrimSpace(wrapped.Parsed), null) {
			return n.UnmarshalJSON(wrapped.Parsed)
		}
		return n.UnmarshalJSON(wrapped.Rawvalue)
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "x")
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = Number{Value: v, Valid: true}
		return nil
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v {
			*n = Number{Value: 1, Valid: true}
		} else {
			*n = Number{Value: 0, Valid: true}
		}
		return nil
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*n = Number{Value: v, Valid: true}
		return nil
	}
}

// Date is a timestamp sent either as {"$date": millis} or as epoch seconds.
type Date struct {
	Time  time.Time
	Valid bool
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*d = Date{}
	if len(b) == 0 || bytes.Equal(b, null) {
		return nil
	}
	if b[0] == '{' {
		var wrapped struct {
			Date *int64 `json:"$date"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		if wrapped.Date != nil {
			*d = Date{Time: time.UnixMilli(*wrapped.Date), Valid: true}
		}
		return nil
	}
	var secs Number
	if err := secs.UnmarshalJSON(b); err != nil {
		return err
	}
	if secs.Valid {
		*d = Date{Time: time.Unix(int64(secs.Value), 0), Valid: true}
	}
	return nil
}
