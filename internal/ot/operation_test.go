package ot

import (
	"errors"
	"testing"
)

func TestApplyInsertSplicesContent(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		op       Operation
		expected string
	}{
		{
			name:     "middle",
			content:  "Hello World",
			op:       Operation{Kind: KindInsert, Position: 6, Content: "Beautiful "},
			expected: "Hello Beautiful World",
		},
		{
			name:     "start",
			content:  "World",
			op:       Operation{Kind: KindInsert, Position: 0, Content: "Hello "},
			expected: "Hello World",
		},
		{
			name:     "position past end clamps to append",
			content:  "abc",
			op:       Operation{Kind: KindInsert, Position: 99, Content: "d"},
			expected: "abcd",
		},
		{
			name:     "negative position clamps to prepend",
			content:  "abc",
			op:       Operation{Kind: KindInsert, Position: -4, Content: "z"},
			expected: "zabc",
		},
		{
			name:     "empty content is a no-op",
			content:  "abc",
			op:       Operation{Kind: KindInsert, Position: 1, Content: ""},
			expected: "abc",
		},
		{
			name:     "multibyte runes are not split",
			content:  "héllo",
			op:       Operation{Kind: KindInsert, Position: 2, Content: "x"},
			expected: "héxllo",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.content, tc.op); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestApplyDeleteRemovesRange(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		op       Operation
		expected string
	}{
		{
			name:     "prefix",
			content:  "Hello World",
			op:       Operation{Kind: KindDelete, Position: 0, Length: 6},
			expected: "World",
		},
		{
			name:     "oversized length truncates",
			content:  "abcdef",
			op:       Operation{Kind: KindDelete, Position: 4, Length: 10},
			expected: "abcd",
		},
		{
			name:     "position past end is a no-op",
			content:  "abc",
			op:       Operation{Kind: KindDelete, Position: 7, Length: 2},
			expected: "abc",
		},
		{
			name:     "zero length is a no-op",
			content:  "abc",
			op:       Operation{Kind: KindDelete, Position: 1, Length: 0},
			expected: "abc",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.content, tc.op); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestApplyPreservesLengthInvariant(t *testing.T) {
	content := "the quick brown fox"
	contentLen := len([]rune(content))

	insert := Operation{Kind: KindInsert, Position: 4, Content: "very "}
	if got := len([]rune(Apply(content, insert))); got != contentLen+insert.Span() {
		t.Fatalf("insert length invariant violated: got %d, want %d", got, contentLen+insert.Span())
	}

	del := Operation{Kind: KindDelete, Position: 16, Length: 10}
	actualDeleted := contentLen - del.Position
	if got := len([]rune(Apply(content, del))); got != contentLen-actualDeleted {
		t.Fatalf("delete length invariant violated: got %d, want %d", got, contentLen-actualDeleted)
	}
}

func TestApplyRetainLeavesContentUntouched(t *testing.T) {
	op := Operation{Kind: KindRetain, Position: 3}
	if got := Apply("unchanged", op); got != "unchanged" {
		t.Fatalf("retain modified content: %q", got)
	}
}

func TestValidateRejectsMalformedOperations(t *testing.T) {
	cases := []struct {
		name string
		op   Operation
	}{
		{name: "negative position", op: Operation{Kind: KindInsert, Position: -1, Content: "x"}},
		{name: "insert without content", op: Operation{Kind: KindInsert, Position: 0}},
		{name: "delete with zero length", op: Operation{Kind: KindDelete, Position: 0}},
		{name: "delete with negative length", op: Operation{Kind: KindDelete, Position: 0, Length: -2}},
		{name: "unknown kind", op: Operation{Kind: Kind("replace"), Position: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.op.Validate(); !errors.Is(err, ErrInvalidOperation) {
				t.Fatalf("expected ErrInvalidOperation, got %v", err)
			}
		})
	}

	valid := Operation{Kind: KindRetain, Position: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("retain should validate: %v", err)
	}
}

func TestComposeMergesAdjacentInsertsFromSameAuthor(t *testing.T) {
	ops := []Operation{
		{Kind: KindInsert, Position: 0, Content: "He", AuthorID: "alice"},
		{Kind: KindInsert, Position: 2, Content: "llo", AuthorID: "alice"},
		{Kind: KindInsert, Position: 5, Content: "!", AuthorID: "bob"},
	}

	merged := Compose(ops)
	if len(merged) != 2 {
		t.Fatalf("expected 2 operations after compose, got %d", len(merged))
	}
	if merged[0].Content != "Hello" {
		t.Fatalf("expected merged content %q, got %q", "Hello", merged[0].Content)
	}
	if merged[1].AuthorID != "bob" {
		t.Fatalf("expected bob's insert to survive unmerged")
	}
}

func TestComposeLeavesNonAdjacentInsertsAlone(t *testing.T) {
	ops := []Operation{
		{Kind: KindInsert, Position: 0, Content: "ab", AuthorID: "alice"},
		{Kind: KindInsert, Position: 5, Content: "cd", AuthorID: "alice"},
		{Kind: KindDelete, Position: 1, Length: 1, AuthorID: "alice"},
	}

	merged := Compose(ops)
	if len(merged) != 3 {
		t.Fatalf("expected compose to preserve %d operations, got %d", len(ops), len(merged))
	}
	for i := range ops {
		if merged[i].Kind != ops[i].Kind || merged[i].Position != ops[i].Position {
			t.Fatalf("compose reordered or altered operation %d", i)
		}
	}
}
