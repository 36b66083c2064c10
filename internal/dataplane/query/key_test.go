package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKeyStringIsCanonical(t *testing.T) {
	t.Parallel()

	a := Key{Resource: "notifications", Filters: map[string]string{"userId": "u1", "type": "alert"}, Cursor: Cursor{Page: 1, PageSize: 10}}
	b := Key{Resource: "notifications", Filters: map[string]string{"type": "alert", "userId": "u1"}, Cursor: Cursor{Page: 1, PageSize: 10}}
	if !a.Equal(b) {
		t.Fatalf("keys differ: %s vs %s", a, b)
	}
	want := `["notifications",{"type":"alert","userId":"u1"},[],{"page":1,"pageSize":10}]`
	if got := a.String(); got != want {
		t.Fatalf("String() = %s, want %s", got, want)
	}
}

func TestKeyEmptyFiltersSerializeAsObject(t *testing.T) {
	t.Parallel()

	if got, want := NewKey("notifications", nil).String(), `["notifications",{},[],{}]`; got != want {
		t.Fatalf("String() = %s, want %s", got, want)
	}
}

func TestKeyDistinguishesCursorAndSort(t *testing.T) {
	t.Parallel()

	base := NewKey("notifications", map[string]string{"userId": "u1"})
	paged := base.Clone()
	paged.Cursor.Page = 2
	sorted := base.Clone()
	sorted.Sort = Sort{{Path: "createdAt", Desc: true}}

	if base.Equal(paged) || base.Equal(sorted) || paged.Equal(sorted) {
		t.Fatal("expected distinct keys")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	k := NewKey("notifications", map[string]string{"userId": "u1"})
	c := k.Clone()
	c.Filters["userId"] = "u2"
	if k.Filter("userId") != "u1" {
		t.Fatalf("original filter = %q, want u1", k.Filter("userId"))
	}
}

func TestParseSort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		want    Sort
		wantErr bool
	}{
		{name: "empty", expr: ""},
		{name: "single", expr: "createdAt", want: Sort{{Path: "createdAt"}}},
		{name: "desc and asc", expr: "createdAt desc, title asc", want: Sort{{Path: "createdAt", Desc: true}, {Path: "title"}}},
		{name: "bad direction", expr: "createdAt sideways", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSort(tc.expr)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSort: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("sort mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortValidateAndString(t *testing.T) {
	t.Parallel()

	s := Sort{{Path: "createdAt", Desc: true}, {Path: "title"}}
	if err := s.Validate("createdAt", "title"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := s.Validate("createdAt"); err == nil {
		t.Fatal("expected unknown path error")
	}
	if got, want := s.String(), "createdAt desc, title"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	page1 := Key{Resource: "notifications", Filters: map[string]string{"userId": "u1", "isRead": "false"}, Cursor: Cursor{Page: 1}}
	page2 := Key{Resource: "notifications", Filters: map[string]string{"userId": "u1"}, Cursor: Cursor{Page: 2}}
	other := Key{Resource: "notifications", Filters: map[string]string{"userId": "u2"}}
	count := Key{Resource: "notifications/unread-count", Filters: map[string]string{"userId": "u1"}}

	tests := []struct {
		name string
		pred Predicate
		want []bool
	}{
		{name: "key", pred: MatchKey(page1.Clone()), want: []bool{true, false, false, false}},
		{name: "resource", pred: MatchResource("notifications"), want: []bool{true, true, true, false}},
		{name: "prefix", pred: MatchPrefix("notifications", map[string]string{"userId": "u1"}), want: []bool{true, true, false, false}},
		{name: "all", pred: MatchAll(), want: []bool{true, true, true, true}},
		{name: "or", pred: Or(MatchKey(other), MatchResource("notifications/unread-count")), want: []bool{false, false, true, true}},
	}
	keys := []Key{page1, page2, other, count}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			for i, k := range keys {
				if got := tc.pred(k); got != tc.want[i] {
					t.Fatalf("pred(%s) = %v, want %v", k, got, tc.want[i])
				}
			}
		})
	}
}
