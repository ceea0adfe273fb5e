package firestore

import (
	"testing"

	domain "github.com/hallpass-app/api/internal/domain"
)

func TestSelectDirectoryMatchesSubstring(t *testing.T) {
	students := []domain.Student{
		{ID: "stu_1", FirstName: "Sam", LastName: "Smith"},
		{ID: "stu_2", FirstName: "Dmitri", LastName: "Volkov"},
		{ID: "stu_3", FirstName: "Mary", LastName: "Jones"},
	}

	cases := []struct {
		name   string
		needle string
		want   []string
	}{
		{name: "mid-string last name", needle: "mit", want: []string{"stu_1", "stu_2"}},
		{name: "mid-string first name", needle: "ar", want: []string{"stu_3"}},
		{name: "prefix still matches", needle: "smi", want: []string{"stu_1"}},
		{name: "no containment", needle: "xyz", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := selectDirectoryMatches(students, tc.needle, 10)
			if len(got) != len(tc.want) {
				t.Fatalf("matched %d students, want %d: %+v", len(got), len(tc.want), got)
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("match %d = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestSelectDirectoryMatchesOrderAndCap(t *testing.T) {
	students := []domain.Student{
		{ID: "stu_3", FirstName: "Ben", LastName: "Smith"},
		{ID: "stu_1", FirstName: "Amy", LastName: "Smith"},
		{ID: "stu_2", FirstName: "Amy", LastName: "Smith"},
		{ID: "stu_4", FirstName: "Cal", LastName: "Smithson"},
	}

	got := selectDirectoryMatches(students, "smith", 3)
	want := []string{"stu_1", "stu_2", "stu_3"}
	if len(got) != len(want) {
		t.Fatalf("matched %d students, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("match %d = %q, want %q", i, got[i].ID, id)
		}
	}
}
