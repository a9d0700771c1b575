package analyzer

import (
	"strings"
	"testing"
)

func TestAnalyzeDenyList(t *testing.T) {
	a := New()

	tests := []struct {
		name     string
		code     string
		wantSafe bool
		wantName string // expected offending operation in the reason
	}{
		{"shell out", `os.execute("ls")`, false, "os.execute"},
		{"subprocess", `local h = io.popen("whoami")`, false, "io.popen"},
		{"dynamic eval", `load("return 1")()`, false, "load"},
		{"loadstring", `loadstring("print(1)")`, false, "loadstring"},
		{"dynamic import", `require("socket")`, false, "require"},
		{"dofile", `dofile("x.lua")`, false, "dofile"},
		{"open file", `io.open("/etc/passwd")`, false, "io.open"},
		{"scope introspection", `getfenv(0)`, false, "getfenv"},
		{"nested in function", "local function f()\n  os.execute(\"rm\")\nend", false, "os.execute"},
		{"nested in if", `if x then io.popen("id") end`, false, "io.popen"},
		{"call argument", `print(io.popen("id"))`, false, "io.popen"},
		{"plain print", `print("hello")`, true, ""},
		{"arithmetic", `local x = 1 + 2 print(x)`, true, ""},
		{"field named load is not a call", `local t = { load = 1 } print(t.load)`, true, ""},
		{"identifier substring not matched", `loader("x")`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(tt.code)
			if res.Safe() != tt.wantSafe {
				t.Fatalf("Analyze(%q) safe = %v, want %v (reason: %s)", tt.code, res.Safe(), tt.wantSafe, res.Reason)
			}
			if tt.wantName != "" && !strings.Contains(res.Reason, tt.wantName) {
				t.Errorf("reason %q does not name %q", res.Reason, tt.wantName)
			}
		})
	}
}

func TestAnalyzeSyntaxError(t *testing.T) {
	a := New()

	res := a.Analyze("local x = ")
	if res.Safe() {
		t.Fatal("expected unsafe verdict for invalid syntax")
	}
	if !strings.Contains(res.Reason, "syntax error") {
		t.Errorf("reason %q should carry a syntax diagnostic", res.Reason)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := New()
	code := `os.execute("ls")`

	first := a.Analyze(code)
	for i := 0; i < 5; i++ {
		if got := a.Analyze(code); got != first {
			t.Fatalf("verdict changed between runs: %+v vs %+v", got, first)
		}
	}
}

func TestCustomDenyList(t *testing.T) {
	a := NewWithDenyList([]string{"badcall"})

	if res := a.Analyze(`os.execute("ls")`); !res.Safe() {
		t.Errorf("os.execute should pass a deny-list that omits it, got %q", res.Reason)
	}
	if res := a.Analyze(`badcall()`); res.Safe() {
		t.Error("badcall should be rejected by the custom deny-list")
	}
}

func TestStats(t *testing.T) {
	code := "local function f() return 1 end\nlocal g = function() end\nlocal t = {a = 1}\nprint(f())"

	a := New()
	stats, err := a.Stats(code)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.Functions != 2 {
		t.Errorf("Functions = %d, want 2", stats.Functions)
	}
	if stats.Tables != 1 {
		t.Errorf("Tables = %d, want 1", stats.Tables)
	}
	if stats.Lines != 4 {
		t.Errorf("Lines = %d, want 4", stats.Lines)
	}
}

func TestStatsSyntaxError(t *testing.T) {
	a := New()
	if _, err := a.Stats("local = nope"); err == nil {
		t.Fatal("expected error for invalid syntax")
	}
}
