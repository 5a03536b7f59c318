package registry

import (
	"strings"
	"testing"
)

func TestParseYAMLRegistry(t *testing.T) {
	raw := []byte(`
organizations:
  - id: uni-example
    name: Example University
    acronym: EXU
    group: universities
    ror_id: 02j61yw88
  - id: inst-research
    name: Research Institute
    group: institutes
    ror_id: 04abc1234
`)

	reg, err := ParseYAMLRegistry(raw)
	if err != nil {
		t.Fatalf("ParseYAMLRegistry: %v", err)
	}

	all := reg.All()
	if len(all) != 2 {
		t.Fatalf("organizations = %d, want 2", len(all))
	}
	if all[0].ID != "uni-example" || all[0].RORID != "02j61yw88" {
		t.Errorf("first entry = %+v, want uni-example/02j61yw88", all[0])
	}

	org, ok := reg.Find("inst-research")
	if !ok || org.Name != "Research Institute" {
		t.Errorf("Find(inst-research) = %+v %v", org, ok)
	}
	if _, ok := reg.Find("missing"); ok {
		t.Error("Find(missing) reported a hit")
	}
}

func TestParseYAMLRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "empty roster",
			raw:     "organizations: []",
			wantErr: "no organizations",
		},
		{
			name: "missing id",
			raw: `
organizations:
  - name: Nameless
    ror_id: 02j61yw88
`,
			wantErr: "id is required",
		},
		{
			name: "missing ror id",
			raw: `
organizations:
  - id: uni-a
    name: A
`,
			wantErr: "ror_id is required",
		},
		{
			name: "duplicate id",
			raw: `
organizations:
  - id: uni-a
    ror_id: 02j61yw88
  - id: uni-a
    ror_id: 04abc1234
`,
			wantErr: "duplicate id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAMLRegistry([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
