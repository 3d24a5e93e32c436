package memory

import "testing"

func TestRememberShortOverflowsToLongTerm(t *testing.T) {
	m := New("a1", 2)
	m.RememberShort("one", EntryText, nil)
	m.RememberShort("two", EntryText, nil)
	m.RememberShort("three", EntryText, nil)

	short := m.QueryShort(Filter{})
	if len(short) != 2 {
		t.Fatalf("expected short-term capped at 2, got %d", len(short))
	}
	if short[0].Content != "two" || short[1].Content != "three" {
		t.Fatalf("unexpected short-term contents: %+v", short)
	}

	long := m.QueryLong(Filter{})
	if len(long) != 1 || long[0].Content != "one" {
		t.Fatalf("expected oldest entry demoted to long-term, got %+v", long)
	}
}

func TestQueryFilterComposesPredicates(t *testing.T) {
	m := New("a1", 10)
	m.RememberShort("build failed", EntryError, nil)
	m.RememberShort("build succeeded", EntryResult, nil)
	m.RememberShort("unrelated note", EntryText, nil)

	got := m.QueryAll(Filter{Keyword: "build"})
	if len(got) != 2 {
		t.Fatalf("expected 2 keyword matches, got %d", len(got))
	}

	got = m.QueryAll(Filter{Type: EntryError})
	if len(got) != 1 || got[0].Content != "build failed" {
		t.Fatalf("expected 1 error entry, got %+v", got)
	}
}

func TestQueryFilterLimitKeepsMostRecent(t *testing.T) {
	m := New("a1", 10)
	for _, c := range []string{"a", "b", "c", "d"} {
		m.RememberShort(c, EntryText, nil)
	}

	got := m.QueryAll(Filter{Limit: 2})
	if len(got) != 2 || got[0].Content != "c" || got[1].Content != "d" {
		t.Fatalf("expected last 2 entries [c d], got %+v", got)
	}
}

func TestGetContextFormatsChronologically(t *testing.T) {
	m := New("a1", 10)
	m.RememberShort("first", EntryText, nil)
	m.RememberShort("second", EntryInsight, nil)

	ctx := m.GetContext(10)
	want := "[text] first\n[insight] second"
	if ctx != want {
		t.Fatalf("expected %q, got %q", want, ctx)
	}
}

func TestClearShortTermKeepsLongTerm(t *testing.T) {
	m := New("a1", 1)
	m.RememberShort("one", EntryText, nil)
	m.RememberShort("two", EntryText, nil) // overflows "one" into long-term

	m.ClearShortTerm()
	if len(m.QueryShort(Filter{})) != 0 {
		t.Fatal("expected short-term cleared")
	}
	if len(m.QueryLong(Filter{})) != 1 {
		t.Fatal("expected long-term preserved")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := New("a1", 10)
	m.RememberShort("s1", EntryText, nil)
	m.RememberLong("l1", EntryText, nil)

	short, long := m.Export()

	m2 := New("a1", 10)
	m2.Import(short, long)

	if len(m2.QueryShort(Filter{})) != 1 || len(m2.QueryLong(Filter{})) != 1 {
		t.Fatal("expected import to restore both stores")
	}
}
