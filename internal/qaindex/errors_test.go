package qaindex_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/flemzord/qaindex/internal/qaindex"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want qaindex.Kind
	}{
		{nil, qaindex.KindNone},
		{&qaindex.NotFoundError{Entity: "session", SessionID: "s"}, qaindex.KindNotFound},
		{fmt.Errorf("wrapped: %w", &qaindex.ValidationError{Field: "q", Reason: "empty"}), qaindex.KindValidation},
		{&qaindex.PersistenceError{Op: "write", Err: errors.New("boom")}, qaindex.KindPersistence},
		{errors.New("other"), qaindex.KindOther},
	}
	for _, tt := range tests {
		if got := qaindex.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessagesNameTheEntity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&qaindex.NotFoundError{Entity: "session", SessionID: "s1"}, `qaindex: session "s1" not found`},
		{&qaindex.NotFoundError{Entity: "entry", SessionID: "s1", Seq: 4}, `qaindex: entry s1#4 not found`},
		{&qaindex.NotFoundError{Entity: "hash", Key: "abc"}, `qaindex: hash "abc" not found`},
		{&qaindex.ValidationError{Field: "significance", Reason: "1.5 outside [0,1]", SessionID: "s1", Seq: 2}, `qaindex: invalid significance for s1#2: 1.5 outside [0,1]`},
		{&qaindex.PersistenceError{Op: "write", Path: "/tmp/x.json", Err: errors.New("disk full")}, `qaindex: write snapshot /tmp/x.json: disk full`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
