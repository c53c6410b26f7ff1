package booking

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/cinema-booking/internal/domain"
)

func TestCancelSkippable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"purged between snapshot and cancel", domain.ErrNotFound, true},
		{"purged, wrapped", errors.Wrap(domain.ErrNotFound, "booking 7"), true},
		{"already cancelled", &domain.InvalidStateError{BookingID: 7, Status: domain.StatusCancelled, Op: "cancel"}, true},
		{"serialization failure", domain.ErrSerializationFailure, false},
		{"infrastructure error", errors.New("connection reset"), false},
	}
	for _, c := range cases {
		if got := cancelSkippable(c.err); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}
