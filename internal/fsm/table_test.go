package fsm

import "testing"

func TestTableCan(t *testing.T) {
	table := NewTable(map[string][]string{
		"created":   {"confirmed", "cancelled"},
		"confirmed": {"shipped"},
	})

	cases := []struct {
		from, to string
		want     bool
	}{
		{"created", "confirmed", true},
		{"created", "cancelled", true},
		{"created", "shipped", false},
		{"confirmed", "shipped", true},
		{"confirmed", "created", false},
		{"shipped", "created", false},
		{"unknown", "created", false},
	}

	for _, c := range cases {
		if got := table.Can(c.from, c.to); got != c.want {
			t.Errorf("Can(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTableTargets(t *testing.T) {
	table := NewTable(map[string][]string{
		"created": {"confirmed", "cancelled"},
	})

	targets := table.Targets("created")
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if table.Targets("shipped") != nil {
		t.Errorf("expected no targets for unlisted state")
	}
}

func TestTableTerminal(t *testing.T) {
	table := NewTable(map[string][]string{
		"created":   {"confirmed"},
		"confirmed": {},
	})

	if table.Terminal("created") {
		t.Errorf("created must not be terminal")
	}
	if !table.Terminal("confirmed") {
		t.Errorf("confirmed must be terminal")
	}
	if !table.Terminal("unknown") {
		t.Errorf("unlisted states are terminal")
	}
}
