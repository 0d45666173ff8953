package speculate

import (
	"strings"
	"testing"
)

const (
	baseA       = "function f() {\n    "
	completionA = "console.log(1);\nreturn 0;"
)

func TestQueryEmptyCache(t *testing.T) {
	var c Cache
	for _, above := range []string{"", "anything", baseA} {
		if line, ok := c.Query(above); ok {
			t.Errorf("Query(%q) on fresh cache = %q, want miss", above, line)
		}
	}
}

func TestQueryAdvancesThroughLines(t *testing.T) {
	var c Cache
	c.Store(baseA, completionA)

	line, ok := c.Query(baseA)
	if !ok || line != "console.log(1);" {
		t.Fatalf("Query(base) = %q, %v; want %q", line, ok, "console.log(1);")
	}

	line, ok = c.Query(baseA + "console.log(1);\n")
	if !ok || line != "return 0;" {
		t.Fatalf("Query(base+line1) = %q, %v; want %q", line, ok, "return 0;")
	}
}

func TestQueryCaughtUpClears(t *testing.T) {
	var c Cache
	c.Store(baseA, completionA)

	if line, ok := c.Query(baseA + completionA); ok {
		t.Fatalf("Query(full text) = %q, want miss", line)
	}
	if !c.Empty() {
		t.Error("cache should be cleared after catching up")
	}
	if line, ok := c.Query(baseA); ok {
		t.Errorf("Query(base) after clear = %q, want miss", line)
	}
}

func TestQueryMismatchClears(t *testing.T) {
	tests := []struct {
		name  string
		above string
	}{
		{"typed something else", baseA + "print("},
		{"deleted into base", "function f() {\n"},
		{"moved elsewhere", "package main\n"},
		{"typed past prediction", baseA + completionA + "\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Cache
			c.Store(baseA, completionA)
			// "deleted into base" is still a prefix of the full text.
			wantHit := strings.HasPrefix(baseA+completionA, tt.above)
			_, ok := c.Query(tt.above)
			if ok != wantHit {
				t.Fatalf("Query(%q) hit = %v, want %v", tt.above, ok, wantHit)
			}
			if wantHit {
				return
			}
			if !c.Empty() {
				t.Error("cache should be cleared after a mismatch")
			}
			if _, ok := c.Query(baseA); ok {
				t.Error("subsequent Query should miss until the next Store")
			}
		})
	}
}

func TestQueryDeletedIntoBaseServesFromThere(t *testing.T) {
	var c Cache
	c.Store(baseA, completionA)

	line, ok := c.Query("function f() {\n")
	if !ok || line != "    console.log(1);" {
		t.Errorf("Query = %q, %v; want %q", line, ok, "    console.log(1);")
	}
}

func TestQueryIsIdempotent(t *testing.T) {
	var c Cache
	c.Store(baseA, completionA)
	above := baseA + "cons"

	first, ok := c.Query(above)
	if !ok {
		t.Fatal("expected hit")
	}
	for i := 0; i < 5; i++ {
		got, ok := c.Query(above)
		if !ok || got != first {
			t.Fatalf("call %d: Query = %q, %v; want %q", i, got, ok, first)
		}
	}
	if c.fullText != baseA+completionA {
		t.Errorf("Query mutated the cache: %q", c.fullText)
	}
}

func TestStoreFirstLineProperty(t *testing.T) {
	tests := []struct {
		name       string
		base       string
		completion string
		want       string
		wantHit    bool
	}{
		{"single line", "x := ", "42", "42", true},
		{"multi line", "if ok {\n", "\treturn\n}", "\treturn", true},
		{"leading newline", "a", "\nb", "", true},
		{"empty completion", "abc", "", "", false},
		{"empty base", "", "first\nsecond", "first", true},
		{"unicode", "名前 := ", "\"値\"\nfmt.Println(名前)", "\"値\"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Cache
			c.Store(tt.base, tt.completion)
			got, ok := c.Query(tt.base)
			if ok != tt.wantHit || got != tt.want {
				t.Errorf("Query(base) = %q, %v; want %q, %v", got, ok, tt.want, tt.wantHit)
			}
			if !tt.wantHit && !c.Empty() {
				t.Error("empty completion should leave the cache cleared")
			}
		})
	}
}

func TestStorePrefixExtensionProperty(t *testing.T) {
	base := "for i := 0; i < n; i++ {\n"
	completion := "\tsum += i\n\tcount++\n}"
	full := base + completion

	for n := len(base); n < len(full); n++ {
		var c Cache
		c.Store(base, completion)
		above := full[:n]
		want, _, _ := strings.Cut(full[n:], "\n")
		got, ok := c.Query(above)
		if !ok || got != want {
			t.Fatalf("Query(full[:%d]) = %q, %v; want %q", n, got, ok, want)
		}
	}
}

func TestStoreOverwrites(t *testing.T) {
	var c Cache
	c.Store("a", "b\nc")
	c.Store("x", "y\nz")

	if _, ok := c.Query("a"); ok {
		t.Error("old expectation should be gone")
	}
	c.Store("x", "y\nz")
	if got, ok := c.Query("x"); !ok || got != "y" {
		t.Errorf("Query(x) = %q, %v; want y", got, ok)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	var c Cache
	c.Clear()
	c.Store("a", "b")
	c.Clear()
	c.Clear()
	if !c.Empty() {
		t.Error("expected empty cache")
	}
}
