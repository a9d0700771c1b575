package bot

import (
	"context"
	"testing"
)

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRouter("!", nil)
	r.Register(&Command{Name: "run", Run: noop})

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	r.Register(&Command{Name: "other", Aliases: []string{"run"}, Run: noop})
}

func TestCommandsOrder(t *testing.T) {
	r := NewRouter("!", nil)
	for _, name := range []string{"c", "a", "b"} {
		r.Register(&Command{Name: name, Run: noop})
	}

	got := r.Commands()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"c", "a", "b"} {
		if got[i].Name != want {
			t.Errorf("Commands()[%d] = %q, want registration order %q", i, got[i].Name, want)
		}
	}
}

func TestDispatchAlias(t *testing.T) {
	r := NewRouter("!", nil)
	var called string
	r.Register(&Command{
		Name:    "run",
		Aliases: []string{"exec"},
		Run: func(_ context.Context, _ Message, args string, _ Responder) error {
			called = args
			return nil
		},
	})

	handled, err := r.Dispatch(context.Background(), Message{Content: "!exec some code"}, &recorder{})
	if err != nil || !handled {
		t.Fatalf("Dispatch = (%v, %v), want handled", handled, err)
	}
	if called != "some code" {
		t.Errorf("args = %q, want command-stripped text", called)
	}
}

func noop(context.Context, Message, string, Responder) error {
	return nil
}
