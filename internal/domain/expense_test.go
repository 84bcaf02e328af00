package domain

import "testing"

func TestParseSortOrder(t *testing.T) {
	cases := []struct {
		in   string
		want SortOrder
	}{
		{"", SortOrder{}},
		{"date", SortOrder{Field: SortByDate}},
		{"-amount", SortOrder{Field: SortByAmount, Desc: true}},
		{" title ", SortOrder{Field: SortByTitle}},
		{"-createdAt", SortOrder{Field: SortByCreatedAt, Desc: true}},
		{"created_at", SortOrder{Field: SortByCreatedAt}},
	}
	for _, tc := range cases {
		got, err := ParseSortOrder(tc.in)
		if err != nil {
			t.Fatalf("ParseSortOrder(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSortOrder(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseSortOrderRejectsUnknownFields(t *testing.T) {
	for _, in := range []string{"user_id", "-", "--date", "password"} {
		if _, err := ParseSortOrder(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
	}
	if Category("food").Valid() {
		t.Fatal("categories are case sensitive")
	}
	if Category("").Valid() {
		t.Fatal("empty category is not valid")
	}
}
