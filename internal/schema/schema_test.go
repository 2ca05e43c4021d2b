package schema

import (
	"strings"
	"testing"
)

// ----------------------------------------------------------------------------
// Conversion Tests
// ----------------------------------------------------------------------------

func TestToPgNumeric(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{"positive integer", "123", true},
		{"decimal number", "123.45", true},
		{"leading decimal point", ".99", true},
		{"dollar sign", "$1,234.50", true},
		{"euro sign", "€99", true},
		{"accounting negative", "(42.10)", true},
		{"scientific notation not supported by pgtype", "1.5e3", false},
		{"empty", "", false},
		{"letters", "abc", false},
		{"two decimal points", "1.2.3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgNumeric(tt.input)
			if got.Valid != tt.wantValid {
				t.Errorf("ToPgNumeric(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
		})
	}
}

func TestToPgDate(t *testing.T) {
	tests := []struct {
		input string
		want  string // YYYY-MM-DD, empty for invalid
	}{
		{"2024-01-15", "2024-01-15"},
		{"1/15/2024", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"20240115", "2024-01-15"},
		{"", ""},
		{"not a date", ""},
	}

	for _, tt := range tests {
		got := ToPgDate(tt.input)
		if tt.want == "" {
			if got.Valid {
				t.Errorf("ToPgDate(%q) valid, want invalid", tt.input)
			}
			continue
		}
		if !got.Valid || got.Time.Format("2006-01-02") != tt.want {
			t.Errorf("ToPgDate(%q) = %v, want %s", tt.input, got.Time, tt.want)
		}
	}
}

func TestToPgBool(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		wantBool  bool
	}{
		{"yes", true, true},
		{"TRUE", true, true},
		{"1", true, true},
		{"n", true, false},
		{"false", true, false},
		{"maybe", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		got := ToPgBool(tt.input)
		if got.Valid != tt.wantValid || got.Bool != tt.wantBool {
			t.Errorf("ToPgBool(%q) = %+v, want valid=%v bool=%v", tt.input, got, tt.wantValid, tt.wantBool)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"  plain  ", "plain"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	price, _ := Product.Field("price")
	from, _ := Product.Field("available_from")
	stock, _ := Product.Field("in_stock")

	tests := []struct {
		spec  FieldSpec
		input string
		want  string
	}{
		{price, "$1,299.00", "1299.00"},
		{from, "1/15/2024", "2024-01-15"},
		{stock, "Yes", "true"},
		{stock, "0", "false"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.spec, tt.input); got != tt.want {
			t.Errorf("Canonical(%s, %q) = %q, want %q", tt.spec.Name, tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// Validation Tests
// ----------------------------------------------------------------------------

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		rec     map[string]string
		wantErr string
	}{
		{
			name: "valid product",
			rec:  map[string]string{"sku": "A-1", "name": "Mug", "price": "9.99", "status": "active"},
		},
		{
			name:    "missing required name",
			rec:     map[string]string{"sku": "A-1", "price": "9.99"},
			wantErr: "required field",
		},
		{
			name:    "bad price",
			rec:     map[string]string{"sku": "A-1", "name": "Mug", "price": "cheap"},
			wantErr: "invalid number",
		},
		{
			name:    "bad status",
			rec:     map[string]string{"sku": "A-1", "name": "Mug", "price": "1", "status": "sold"},
			wantErr: "invalid enum",
		},
		{
			name:    "bad date",
			rec:     map[string]string{"sku": "A-1", "name": "Mug", "price": "1", "available_from": "soon"},
			wantErr: "invalid date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(Product, tt.rec)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateRecord() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	rec := map[string]string{"sku": " ab-1 ", "status": "ACTIVE", "bogus": "x"}
	Normalize(Product, rec)

	if rec["sku"] != "AB-1" {
		t.Errorf("sku = %q, want AB-1", rec["sku"])
	}
	if rec["status"] != "active" {
		t.Errorf("status = %q, want active", rec["status"])
	}
	if _, ok := rec["bogus"]; ok {
		t.Error("unknown field kept")
	}
}

func TestValidateHeaders(t *testing.T) {
	t.Run("default headers", func(t *testing.T) {
		idx, err := ValidateHeaders(Category, []string{"Slug", "Name", "Parent"}, nil)
		if err != nil {
			t.Fatalf("ValidateHeaders() error = %v", err)
		}
		if idx["name"] != 1 {
			t.Errorf("idx[name] = %d, want 1", idx["name"])
		}
	})

	t.Run("mapped headers", func(t *testing.T) {
		mapping := map[string]string{"slug": "Handle", "name": "Title"}
		if _, err := ValidateHeaders(Category, []string{"Handle", "Title"}, mapping); err != nil {
			t.Errorf("ValidateHeaders() error = %v", err)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ValidateHeaders(Product, []string{"sku", "name"}, nil)
		if err == nil || !strings.Contains(err.Error(), "missing required column: price") {
			t.Errorf("ValidateHeaders() error = %v", err)
		}
	})
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup("Product"); !ok {
		t.Error("Lookup(Product) not found")
	}
	if _, ok := Lookup("order"); ok {
		t.Error("Lookup(order) found")
	}
	if got := len(Entities()); got != 2 {
		t.Errorf("Entities() = %d, want 2", got)
	}
	if Category.Noun(1) != "category" || Category.Noun(3) != "categories" {
		t.Error("Noun() wrong")
	}
}
