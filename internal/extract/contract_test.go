package extract_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/intake/internal/extract"
)

func TestCheckContract_Valid(t *testing.T) {
	t.Parallel()

	v, err := extract.Parse(`{"name":"สมชาย","surname":null,"gender":"Male","phone":"0812345678","license_plate":null}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := extract.CheckContract(v); len(got) != 0 {
		t.Errorf("unexpected violations: %v", got)
	}
}

func TestCheckContract_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		reply    string
		location string
	}{
		{"number instead of string", `{"name":"a","surname":"b","gender":"c","phone":812345678,"license_plate":null}`, "/phone"},
		{"missing key", `{"name":"a","surname":"b","gender":"c","phone":null}`, "/"},
		{"extra key", `{"name":"a","surname":"b","gender":"c","phone":null,"license_plate":null,"email":"x"}`, "/"},
		{"array root", `["a"]`, "/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, err := extract.Parse(tc.reply)
			if err != nil {
				t.Fatal(err)
			}
			got := extract.CheckContract(v)
			if len(got) == 0 {
				t.Fatal("expected at least one violation")
			}
			found := false
			for _, viol := range got {
				if viol.Location == tc.location && viol.Message != "" {
					found = true
				}
				if !strings.HasPrefix(viol.String(), viol.Location+": ") {
					t.Errorf("String() = %q", viol.String())
				}
			}
			if !found {
				t.Errorf("no violation at %q in %v", tc.location, got)
			}
		})
	}
}
