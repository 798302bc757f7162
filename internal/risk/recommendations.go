package risk

var recommendationTable = []struct {
	category Category
	advice   []string
}{
	{CategoryDeletion, []string{
		"Consider using backup or version control before deletion",
		"Verify deletion targets are correct",
	}},
	{CategoryExternalTransmission, []string{
		"Ensure data is encrypted before external transmission",
		"Verify recipient authorization",
	}},
	{CategoryFinancial, []string{
		"Require additional authentication for financial operations",
		"Implement transaction limits and monitoring",
	}},
	{CategorySystemAccess, []string{
		"Use principle of least privilege",
		"Log all system access attempts",
	}},
	{CategoryMaliciousCode, []string{
		"Scan for malicious patterns",
		"Execute in isolated environment",
	}},
}

// Recommendations returns advice for the detected categories in a fixed
// order, or a generic monitoring hint when nothing specific applies.
func Recommendations(categories []Category) []string {
	present := make(map[Category]bool, len(categories))
	for _, c := range categories {
		present[c] = true
	}
	var out []string
	for _, row := range recommendationTable {
		if present[row.category] {
			out = append(out, row.advice...)
		}
	}
	if len(out) == 0 {
		out = []string{"Monitor command execution"}
	}
	return out
}
