package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/booklend/internal/domain/model"
)

func TestEncodeDecodeLoanEvent(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	loan := model.NewLoan(3, 4, t0, 14)
	loan.ID = 11
	ev := model.NewLoanEvent("evt-1", model.EventBorrowed, loan, t0.Add(time.Second))

	data, err := Encode(ev)
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"BORROWED"`)
	require.Contains(t, string(data), `"borrowedAt":"2024-03-01T09:00:00Z"`)
	require.Contains(t, string(data), `"returnedAt":null`)

	got, degraded, err := Decode(data)
	require.NoError(t, err)
	require.Empty(t, degraded)
	require.Equal(t, "evt-1", got.EventID)
	require.Equal(t, model.EventBorrowed, got.Type)
	require.Equal(t, int64(11), *got.LoanID)
	require.Equal(t, int64(3), *got.BookID)
	require.Equal(t, int64(4), *got.MemberID)
	require.True(t, got.DueDate.Equal(t0.Add(14*24*time.Hour)))
	require.Nil(t, got.ReturnedAt)
	require.True(t, got.OccurredAt.Equal(t0.Add(time.Second)))
}

func TestDecodeDegradesFieldByField(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		degraded []string
		check    func(t *testing.T, ev model.LoanEvent)
	}{
		{
			name:    "missing fields become nil",
			payload: `{"type":"RETURNED"}`,
			check: func(t *testing.T, ev model.LoanEvent) {
				require.Equal(t, model.EventReturned, ev.Type)
				require.Empty(t, ev.EventID)
				require.Nil(t, ev.LoanID)
				require.Nil(t, ev.OccurredAt)
			},
		},
		{
			name:     "bad instant degrades to nil",
			payload:  `{"type":"BORROWED","eventId":"e","bookId":5,"borrowedAt":"yesterday"}`,
			degraded: []string{"borrowedAt"},
			check: func(t *testing.T, ev model.LoanEvent) {
				require.Nil(t, ev.BorrowedAt)
				require.Equal(t, int64(5), *ev.BookID)
			},
		},
		{
			name:     "numeric string ids are accepted and garbage is dropped",
			payload:  `{"type":"borrowed","loanId":"17","bookId":"abc","memberId":2.5}`,
			degraded: []string{"bookId", "memberId"},
			check: func(t *testing.T, ev model.LoanEvent) {
				require.Equal(t, model.EventBorrowed, ev.Type)
				require.Equal(t, int64(17), *ev.LoanID)
				require.Nil(t, ev.BookID)
				require.Nil(t, ev.MemberID)
			},
		},
		{
			name:    "explicit nulls are not reported",
			payload: `{"type":"RETURNED","returnedAt":null,"loanId":null}`,
			check: func(t *testing.T, ev model.LoanEvent) {
				require.Nil(t, ev.ReturnedAt)
				require.Nil(t, ev.LoanID)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, degraded, err := Decode([]byte(tc.payload))
			require.NoError(t, err)
			require.ElementsMatch(t, tc.degraded, degraded)
			tc.check(t, ev)
		})
	}
}

func TestDecodeRejectsType(t *testing.T) {
	cases := []struct {
		payload string
		want    error
	}{
		{`not json`, ErrMalformed},
		{`[1,2]`, ErrMalformed},
		{`{"eventId":"e"}`, ErrMissingType},
		{`{"type":null}`, ErrMissingType},
		{`{"type":7}`, ErrUnknownType},
		{`{"type":"LOST"}`, ErrUnknownType},
	}
	for _, tc := range cases {
		_, _, err := Decode([]byte(tc.payload))
		require.True(t, errors.Is(err, tc.want), "payload %s: got %v", tc.payload, err)
	}
}

func TestDecodeIDAcceptsNumbersAndNumericStrings(t *testing.T) {
	for _, payload := range []string{
		`{"type":"BORROWED","loanId":17}`,
		`{"type":"BORROWED","loanId":"17"}`,
		`{"type":"BORROWED","loanId":" 17 "}`,
	} {
		ev, degraded, err := Decode([]byte(payload))
		require.NoError(t, err, payload)
		require.Empty(t, degraded, payload)
		require.NotNil(t, ev.LoanID, payload)
		require.Equal(t, int64(17), *ev.LoanID, payload)
	}
}
