package domain

import "testing"

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    FlowPosition
		wantErr bool
	}{
		{in: "1", want: "1"},
		{in: "2.1.2", want: "2.1.2"},
		{in: "3.", want: "3"},
		{in: "", wantErr: true},
		{in: "1..2", wantErr: true},
		{in: "1.a", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePosition(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePosition(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePosition(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePosition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPositionTree(t *testing.T) {
	p := FlowPosition("2.1.2")
	if p.Depth() != 3 {
		t.Errorf("Depth = %d", p.Depth())
	}
	if p.Parent() != "2.1" {
		t.Errorf("Parent = %q", p.Parent())
	}
	if FlowPosition("2").Parent() != "" {
		t.Errorf("root parent should be empty")
	}
	if !p.Under("2.1") || !p.Under("2") {
		t.Errorf("%q should sit under its ancestors", p)
	}
	if p.Under("2.1.2") {
		t.Errorf("a position is not under itself")
	}
	if FlowPosition("2.10").Under("2.1") {
		t.Errorf("2.10 is a sibling subtree of 2.1, not inside it")
	}
}
