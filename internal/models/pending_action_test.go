package models

import (
	"testing"
	"time"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{ActionStatusPending, ActionStatusMinting, true},
		{ActionStatusMinting, ActionStatusApproved, true},
		{ActionStatusPending, ActionStatusApproved, true},
		{ActionStatusPending, ActionStatusRejected, true},

		// Abort / lease expiry
		{ActionStatusMinting, ActionStatusPending, true},

		// Invalid transitions
		{ActionStatusApproved, ActionStatusRejected, false},
		{ActionStatusApproved, ActionStatusPending, false},
		{ActionStatusRejected, ActionStatusPending, false},
		{ActionStatusRejected, ActionStatusApproved, false},
		{ActionStatusMinting, ActionStatusRejected, false},
		{ActionStatusPending, ActionStatusPending, false},
		{"nonexistent", ActionStatusPending, false},
		{ActionStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		ActionStatusPending, ActionStatusMinting, ActionStatusApproved, ActionStatusRejected,
	}

	for _, status := range allStatuses {
		if _, ok := ValidActionTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidActionTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{ActionStatusApproved, ActionStatusRejected}
	for _, status := range terminal {
		transitions := ValidActionTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
		if IsOpen(status) {
			t.Errorf("terminal status %q reported as open", status)
		}
	}
}

func TestReservationExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name   string
		action PendingAction
		want   bool
	}{
		{"pending never expires", PendingAction{Status: ActionStatusPending, ReservedUntil: &past}, false},
		{"minting lapsed", PendingAction{Status: ActionStatusMinting, ReservedUntil: &past}, true},
		{"minting live", PendingAction{Status: ActionStatusMinting, ReservedUntil: &future}, false},
		{"minting without lease", PendingAction{Status: ActionStatusMinting}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.ReservationExpired(now); got != tt.want {
				t.Errorf("ReservationExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
