package diagnosis

import "testing"

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"critical", SeverityCritical},
		{" HIGH ", SeverityHigh},
		{"low", SeverityLow},
		{"medium", SeverityMedium},
		{"catastrophic", SeverityMedium},
		{"", SeverityMedium},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRefinedCategory(t *testing.T) {
	tests := []struct {
		in   string
		want RefinedCategory
	}{
		{"missing_package", CategoryMissingPackage},
		{"Version_Conflict", CategoryVersionConflict},
		{"  test_timeout\n", CategoryTestTimeout},
		{"dependency", CategoryUnknown},
		{"", CategoryUnknown},
	}
	for _, tt := range tests {
		if got := ParseRefinedCategory(tt.in); got != tt.want {
			t.Errorf("ParseRefinedCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRefinedCategoriesIsCopy(t *testing.T) {
	cats := RefinedCategories()
	if len(cats) != 16 || cats[len(cats)-1] != CategoryUnknown {
		t.Fatalf("RefinedCategories() = %v", cats)
	}
	cats[0] = "mutated"
	if RefinedCategories()[0] != CategoryMissingPackage {
		t.Error("RefinedCategories returned shared slice")
	}
}
