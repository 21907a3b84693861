package effector

import (
	"reflect"
	"testing"
)

func push(t *testing.T, s Stream, effects ...Effect) {
	t.Helper()
	for i, eft := range effects {
		if s.PushEffect(i, eft) {
			return
		}
	}
}

func TestSomeAllow(t *testing.T) {
	t.Parallel()

	e := NewDefaultEffector()

	tests := []struct {
		name    string
		effects []Effect
		want    bool
		expl    []int
	}{
		{name: "one allow decides", effects: []Effect{Indeterminate, Allow, Indeterminate}, want: true, expl: []int{1}},
		{name: "no allow denies", effects: []Effect{Indeterminate, Indeterminate}, want: false, expl: nil},
		{name: "deny outcomes ignored", effects: []Effect{Deny, Deny}, want: false, expl: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := e.NewStream("some(where (p_eft == allow))", len(tt.effects))
			if err != nil {
				t.Fatalf("NewStream() error: %v", err)
			}
			push(t, s, tt.effects...)
			if got := s.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if got := s.Explain(); !reflect.DeepEqual(got, tt.expl) {
				t.Errorf("Explain() = %v, want %v", got, tt.expl)
			}
		})
	}
}

func TestSomeAllowShortCircuits(t *testing.T) {
	t.Parallel()

	s, err := NewDefaultEffector().NewStream("some(where (p_eft == allow))", 3)
	if err != nil {
		t.Fatalf("NewStream() error: %v", err)
	}
	if done := s.PushEffect(0, Allow); !done {
		t.Error("PushEffect(Allow) done = false, want true")
	}
}

func TestNoDeny(t *testing.T) {
	t.Parallel()

	e := NewDefaultEffector()

	tests := []struct {
		name    string
		effects []Effect
		want    bool
		expl    []int
	}{
		{name: "indeterminate alone allows", effects: []Effect{Indeterminate}, want: true, expl: nil},
		{name: "deny wins", effects: []Effect{Allow, Deny}, want: false, expl: []int{1}},
		{name: "allows alone keep initial allow", effects: []Effect{Allow, Allow}, want: true, expl: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := e.NewStream("!some(where (p_eft == deny))", len(tt.effects))
			if err != nil {
				t.Fatalf("NewStream() error: %v", err)
			}
			push(t, s, tt.effects...)
			if got := s.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if got := s.Explain(); !reflect.DeepEqual(got, tt.expl) {
				t.Errorf("Explain() = %v, want %v", got, tt.expl)
			}
		})
	}
}

func TestAllowAndNoDeny(t *testing.T) {
	t.Parallel()

	e := NewDefaultEffector()

	tests := []struct {
		name    string
		effects []Effect
		want    bool
	}{
		{name: "allow without deny", effects: []Effect{Allow, Indeterminate}, want: true},
		{name: "deny overrides allow", effects: []Effect{Allow, Deny}, want: false},
		{name: "nothing matches", effects: []Effect{Indeterminate, Indeterminate}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := e.NewStream("some(where (p_eft == allow)) && !some(where (p_eft == deny))", len(tt.effects))
			if err != nil {
				t.Fatalf("NewStream() error: %v", err)
			}
			push(t, s, tt.effects...)
			if got := s.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriority(t *testing.T) {
	t.Parallel()

	e := NewDefaultEffector()

	tests := []struct {
		name    string
		effects []Effect
		want    bool
		expl    []int
	}{
		{name: "first allow decides", effects: []Effect{Allow, Deny}, want: true, expl: []int{0}},
		{name: "first deny decides", effects: []Effect{Indeterminate, Deny, Allow}, want: false, expl: []int{1}},
		{name: "all indeterminate denies", effects: []Effect{Indeterminate, Indeterminate}, want: false, expl: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := e.NewStream("priority(p_eft) || deny", len(tt.effects))
			if err != nil {
				t.Fatalf("NewStream() error: %v", err)
			}
			push(t, s, tt.effects...)
			if got := s.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if got := s.Explain(); !reflect.DeepEqual(got, tt.expl) {
				t.Errorf("Explain() = %v, want %v", got, tt.expl)
			}
		})
	}
}

func TestUnsupportedExpression(t *testing.T) {
	t.Parallel()

	if _, err := NewDefaultEffector().NewStream("most(where (p_eft == allow))", 1); err == nil {
		t.Error("NewStream() with unknown expression: error = nil, want error")
	}
	if Supported("most(where (p_eft == allow))") {
		t.Error("Supported(unknown) = true, want false")
	}
	if !Supported("some(where   (p_eft == allow))") {
		t.Error("Supported() should normalize whitespace")
	}
}

func TestStreamCapacityValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDefaultEffector().NewStream("some(where (p_eft == allow))", 0); err == nil {
		t.Error("NewStream(cap=0) error = nil, want error")
	}
}
