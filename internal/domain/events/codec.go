package events

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/booklend/internal/domain/model"
)

// Sentinel kinds for decode failures that abort a message.
var (
	ErrMalformed   = errors.New("malformed event payload")
	ErrMissingType = errors.New("event type is missing")
	ErrUnknownType = errors.New("unknown event type")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireEvent is the JSON shape on the stream.
type wireEvent struct {
	EventID    string  `json:"eventId"`
	Type       string  `json:"type"`
	LoanID     *int64  `json:"loanId"`
	BookID     *int64  `json:"bookId"`
	MemberID   *int64  `json:"memberId"`
	BorrowedAt *string `json:"borrowedAt"`
	DueDate    *string `json:"dueDate"`
	ReturnedAt *string `json:"returnedAt"`
	OccurredAt *string `json:"occurredAt"`
}

// Encode renders ev as a JSON object with ISO-8601 UTC instants.
func Encode(ev model.LoanEvent) ([]byte, error) {
	return json.Marshal(wireEvent{
		EventID:    ev.EventID,
		Type:       string(ev.Type),
		LoanID:     ev.LoanID,
		BookID:     ev.BookID,
		MemberID:   ev.MemberID,
		BorrowedAt: formatInstant(ev.BorrowedAt),
		DueDate:    formatInstant(ev.DueDate),
		ReturnedAt: formatInstant(ev.ReturnedAt),
		OccurredAt: formatInstant(ev.OccurredAt),
	})
}

func formatInstant(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// Decode parses a payload field by field. A missing or malformed field is
// left nil and its name is reported in degraded; only an unreadable
// document or a missing or unknown type fails the whole message.
func Decode(data []byte) (ev model.LoanEvent, degraded []string, err error) {
	if !jsoniter.ConfigFastest.Valid(data) {
		return ev, nil, ErrMalformed
	}
	root := jsoniter.Get(data)
	if root.ValueType() != jsoniter.ObjectValue {
		return ev, nil, ErrMalformed
	}

	typ := root.Get("type")
	switch typ.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return ev, nil, ErrMissingType
	case jsoniter.StringValue:
	default:
		return ev, nil, ErrUnknownType
	}
	t, perr := model.ParseEventType(typ.ToString())
	if perr != nil {
		return ev, nil, errors.Join(ErrUnknownType, perr)
	}
	ev.Type = t

	if id := root.Get("eventId"); id.ValueType() == jsoniter.StringValue {
		ev.EventID = id.ToString()
	} else if id.ValueType() != jsoniter.InvalidValue && id.ValueType() != jsoniter.NilValue {
		degraded = append(degraded, "eventId")
	}

	for _, f := range []struct {
		name string
		dst  **int64
	}{
		{"loanId", &ev.LoanID},
		{"bookId", &ev.BookID},
		{"memberId", &ev.MemberID},
	} {
		v, ok := decodeID(root.Get(f.name))
		if !ok {
			degraded = append(degraded, f.name)
		}
		*f.dst = v
	}

	for _, f := range []struct {
		name string
		dst  **time.Time
	}{
		{"borrowedAt", &ev.BorrowedAt},
		{"dueDate", &ev.DueDate},
		{"returnedAt", &ev.ReturnedAt},
		{"occurredAt", &ev.OccurredAt},
	} {
		v, ok := decodeInstant(root.Get(f.name))
		if !ok {
			degraded = append(degraded, f.name)
		}
		*f.dst = v
	}
	return ev, degraded, nil
}

// decodeID accepts an integral number or a numeric string. Absent and null
// values decode to nil without being reported.
func decodeID(a jsoniter.Any) (*int64, bool) {
	switch a.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return nil, true
	case jsoniter.NumberValue, jsoniter.StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(a.ToString()), 10, 64)
		if err != nil {
			return nil, false
		}
		return &n, true
	default:
		return nil, false
	}
}

// decodeInstant accepts an ISO-8601 instant string.
func decodeInstant(a jsoniter.Any) (*time.Time, bool) {
	switch a.ValueType() {
	case jsoniter.InvalidValue, jsoniter.NilValue:
		return nil, true
	case jsoniter.StringValue:
		t, err := time.Parse(time.RFC3339Nano, a.ToString())
		if err != nil {
			return nil, false
		}
		t = t.UTC()
		return &t, true
	default:
		return nil, false
	}
}
