package history

import (
	"testing"
	"time"
)

func TestWith_DoesNotAliasData(t *testing.T) {
	base := New(EntityTask, "t1", ActionAssigned, "s1", time.Unix(0, 0)).With("assignee", "s1")
	a := base.With("note", "a")
	b := base.With("note", "b")

	if a.Data["note"] != "a" || b.Data["note"] != "b" {
		t.Fatalf("entries share data map: a=%v b=%v", a.Data, b.Data)
	}
	if _, ok := base.Data["note"]; ok {
		t.Fatalf("base entry mutated: %v", base.Data)
	}
}

func TestTransition(t *testing.T) {
	e := Transition(EntityRoom, "r1", "vacant", "occupied", "desk", time.Unix(10, 0)).WithReason("check-in")
	if e.Action != ActionStatusChanged || e.From != "vacant" || e.To != "occupied" || e.Reason != "check-in" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.ID == "" {
		t.Fatalf("expected id")
	}
}
