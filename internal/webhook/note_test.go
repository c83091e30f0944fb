package webhook

import "testing"

func TestParseKeyFromNote(t *testing.T) {
	note := "AC leaking onto carpet priority=urgent source=night-audit"
	if got := ParseKeyFromNote(note, "priority"); got != "urgent" {
		t.Fatalf("expected urgent, got %q", got)
	}
	if got := ParseKeyFromNote(note, "source"); got != "night-audit" {
		t.Fatalf("expected night-audit, got %q", got)
	}
	if got := ParseKeyFromNote(note, "room"); got != "" {
		t.Fatalf("expected no match, got %q", got)
	}
}

func TestParseKeyFromNote_ToleratesPunctuation(t *testing.T) {
	note := "broken shower,Priority=high;source=desk other=xxx"
	if got := ParseKeyFromNote(note, "priority"); got != "high" {
		t.Fatalf("expected high, got %q", got)
	}
}

func TestNormalizeTopic(t *testing.T) {
	cases := map[string]string{
		"guest/checked-out":     TopicGuestCheckedOut,
		" Guest.Checked_In ":    TopicGuestCheckedIn,
		"maintenance--reported": TopicMaintenanceReported,
	}
	for in, want := range cases {
		if got := NormalizeTopic(in); got != want {
			t.Fatalf("NormalizeTopic(%q) = %q, want %q", in, got, want)
		}
	}
}
