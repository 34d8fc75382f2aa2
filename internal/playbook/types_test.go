package playbook

import "testing"

func TestAttributes_Merge(t *testing.T) {
	t.Run("union with last write wins", func(t *testing.T) {
		base := Attributes{"a": 1, "b": 2}
		merged := base.Merge(Attributes{"b": 3, "c": 4})

		if merged["a"] != 1 || merged["b"] != 3 || merged["c"] != 4 {
			t.Errorf("Merge() = %v, want a:1 b:3 c:4", merged)
		}
		// Receiver must be untouched
		if base["b"] != 2 {
			t.Errorf("base mutated by Merge: %v", base)
		}
	})

	t.Run("nil receiver yields the delta", func(t *testing.T) {
		var base Attributes
		merged := base.Merge(Attributes{"x": 1})
		if merged["x"] != 1 {
			t.Errorf("Merge() = %v, want x:1", merged)
		}
	})
}

func TestAttributes_DeepCopy(t *testing.T) {
	t.Run("nested structures are independent", func(t *testing.T) {
		orig := Attributes{
			"nested": map[string]any{"k": "v"},
			"list":   []any{"a", "b"},
		}
		cp := orig.DeepCopy()

		cp["nested"].(map[string]any)["k"] = "changed"
		cp["list"].([]any)[0] = "changed"

		if orig["nested"].(map[string]any)["k"] != "v" {
			t.Error("nested map shared between copy and original")
		}
		if orig["list"].([]any)[0] != "a" {
			t.Error("slice shared between copy and original")
		}
	})

	t.Run("nil copies to nil", func(t *testing.T) {
		var a Attributes
		if a.DeepCopy() != nil {
			t.Error("DeepCopy() of nil != nil")
		}
	})
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"deploy", true},
		{"deploy-prod_v2", true},
		{"site deploy", true},
		{"", false},
		{"   ", false},
		{"\t\n", false},
	}

	for _, tt := range tests {
		if got := ValidKey(tt.key); got != tt.want {
			t.Errorf("ValidKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDisplayIDFor(t *testing.T) {
	if got := DisplayIDFor("deploy"); got != "sensor_deploy" {
		t.Errorf("DisplayIDFor() = %q, want %q", got, "sensor_deploy")
	}
}
