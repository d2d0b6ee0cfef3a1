package canonical_test

import (
	"testing"

	"github.com/flowlattice/enrich/internal/canonical"
)

func TestMarshalSortsKeys(t *testing.T) {
	in := map[string]interface{}{
		"b": 1,
		"a": 2,
		"c": map[string]interface{}{"z": 1, "y": 2},
	}
	got, err := canonical.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(got) != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestMarshalDeterministicAcrossCalls(t *testing.T) {
	in := map[string]interface{}{"x": 1, "y": []interface{}{1, 2, 3}}
	first, _ := canonical.Marshal(in)
	for i := 0; i < 5; i++ {
		again, err := canonical.Marshal(in)
		if err != nil {
			t.Fatalf("Marshal error: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("non-deterministic output: %s vs %s", again, first)
		}
	}
}
