package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("lifecycle: approve: %w", New(CodeStateConflict, "record is not pending"))

	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected state conflict sentinel to match %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("did not expect not-found sentinel to match %v", err)
	}
	if got := CodeOf(err); got != CodeStateConflict {
		t.Fatalf("expected code %s got %s", CodeStateConflict, got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, CodeStoreUnavailable, "store: begin")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if !Retryable(err) {
		t.Fatal("expected store unavailable to be retryable")
	}
	if err.Error() != "store: begin: dial tcp: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Wrap(nil, CodeInternal, "noop") != nil {
		t.Fatal("expected nil wrap to stay nil")
	}
}

func TestCodeOfForeignErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want Code
	}{
		"nil":      {err: nil, want: ""},
		"plain":    {err: errors.New("boom"), want: CodeInternal},
		"deadline": {err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: CodeStoreUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
	if Retryable(New(CodeValidation, "bad input")) {
		t.Fatal("validation errors must not be retryable")
	}
}
