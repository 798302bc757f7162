package risk

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryDeletion             Category = "deletion"
	CategoryOverwrite            Category = "overwrite"
	CategoryExternalTransmission Category = "external_transmission"
	CategoryFinancial            Category = "financial"
	CategorySystemAccess         Category = "system_access"
	CategoryDataExfiltration     Category = "data_exfiltration"
	CategoryPrivilegeEscalation  Category = "privilege_escalation"
	CategoryMaliciousCode        Category = "malicious_code"
	CategorySuspiciousFile       Category = "suspicious_file"
	CategoryUnauthorizedAccess   Category = "unauthorized_access"
)

func Categories() []Category {
	return []Category{
		CategoryDeletion,
		CategoryOverwrite,
		CategoryExternalTransmission,
		CategoryFinancial,
		CategorySystemAccess,
		CategoryDataExfiltration,
		CategoryPrivilegeEscalation,
		CategoryMaliciousCode,
		CategorySuspiciousFile,
		CategoryUnauthorizedAccess,
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// dangerous categories block medium and lower results when confidence is high.
var dangerous = map[Category]bool{
	CategoryDeletion:             true,
	CategoryExternalTransmission: true,
	CategoryFinancial:            true,
	CategoryMaliciousCode:        true,
}

func (c Category) Dangerous() bool { return dangerous[c] }

func anyDangerous(categories []Category) bool {
	for _, c := range categories {
		if c.Dangerous() {
			return true
		}
	}
	return false
}
