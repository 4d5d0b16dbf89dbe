package domain_test

import (
	"testing"

	"github.com/codeheim/taskpulse/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusPending, "PENDING"},
		{domain.StatusInProgress, "IN_PROGRESS"},
		{domain.StatusCompleted, "COMPLETED"},
		{domain.StatusOverdue, "OVERDUE"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	if !domain.StatusCompleted.IsTerminal() {
		t.Error("IsTerminal(COMPLETED) = false, want true")
	}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusOverdue} {
		t.Run(string(s), func(t *testing.T) {
			if s.IsTerminal() {
				t.Errorf("IsTerminal(%q) = true, want false", s)
			}
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusPending, domain.StatusInProgress, true},
		{domain.StatusPending, domain.StatusCompleted, true},
		{domain.StatusPending, domain.StatusOverdue, true},
		{domain.StatusInProgress, domain.StatusCompleted, true},
		{domain.StatusInProgress, domain.StatusPending, false},
		{domain.StatusInProgress, domain.StatusOverdue, false},
		{domain.StatusOverdue, domain.StatusInProgress, true},
		{domain.StatusOverdue, domain.StatusCompleted, true},
		{domain.StatusOverdue, domain.StatusPending, false},
		{domain.StatusCompleted, domain.StatusPending, false},
		{domain.StatusCompleted, domain.StatusInProgress, false},
		{domain.StatusCompleted, domain.StatusOverdue, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransitionTo_SelfIsNotAnEdge(t *testing.T) {
	for _, s := range []domain.Status{
		domain.StatusPending, domain.StatusInProgress,
		domain.StatusCompleted, domain.StatusOverdue,
	} {
		t.Run(string(s), func(t *testing.T) {
			if s.CanTransitionTo(s) {
				t.Errorf("CanTransitionTo(%q, %q) = true, want false", s, s)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := domain.ParseStatus("IN_PROGRESS"); err != nil {
		t.Errorf("ParseStatus(IN_PROGRESS) returned error: %v", err)
	}
	if _, err := domain.ParseStatus("in_progress"); err == nil {
		t.Error("ParseStatus should be case sensitive")
	}
	if _, err := domain.ParseStatus("DONE"); err == nil {
		t.Error("ParseStatus(DONE) should fail")
	}
}

func TestParsePriority(t *testing.T) {
	if _, err := domain.ParsePriority("HIGH"); err != nil {
		t.Errorf("ParsePriority(HIGH) returned error: %v", err)
	}
	if _, err := domain.ParsePriority("URGENT"); err == nil {
		t.Error("ParsePriority(URGENT) should fail")
	}
}
