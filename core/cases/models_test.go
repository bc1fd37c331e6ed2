package cases

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "open to pending", from: StatusOpen, to: StatusPending, want: true},
		{name: "open to closed", from: StatusOpen, to: StatusClosed, want: true},
		{name: "open to in_progress", from: StatusOpen, to: StatusInProgress},
		{name: "open to completed", from: StatusOpen, to: StatusCompleted},
		{name: "pending to in_progress", from: StatusPending, to: StatusInProgress, want: true},
		{name: "pending to closed", from: StatusPending, to: StatusClosed, want: true},
		{name: "pending to review", from: StatusPending, to: StatusPendingCompletionReview},
		{name: "in_progress to review", from: StatusInProgress, to: StatusPendingCompletionReview, want: true},
		{name: "in_progress to closed", from: StatusInProgress, to: StatusClosed, want: true},
		{name: "in_progress to completed", from: StatusInProgress, to: StatusCompleted},
		{name: "review to completed", from: StatusPendingCompletionReview, to: StatusCompleted, want: true},
		{name: "review back to in_progress", from: StatusPendingCompletionReview, to: StatusInProgress, want: true},
		{name: "review to closed", from: StatusPendingCompletionReview, to: StatusClosed, want: true},
		{name: "completed is terminal", from: StatusCompleted, to: StatusClosed},
		{name: "closed is terminal", from: StatusClosed, to: StatusOpen},
		{name: "unknown status", from: "LOL", to: StatusOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range []string{StatusOpen, StatusPending, StatusInProgress, StatusPendingCompletionReview} {
		if IsTerminalStatus(status) {
			t.Errorf("IsTerminalStatus(%s) = true, want false", status)
		}
	}
	for _, status := range []string{StatusCompleted, StatusClosed} {
		if !IsTerminalStatus(status) {
			t.Errorf("IsTerminalStatus(%s) = false, want true", status)
		}
	}
}
