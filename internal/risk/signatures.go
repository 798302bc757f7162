package risk

import "regexp"

type signatureSet struct {
	category Category
	patterns []*regexp.Regexp
}

func sig(c Category, exprs ...string) signatureSet {
	set := signatureSet{category: c, patterns: make([]*regexp.Regexp, 0, len(exprs))}
	for _, e := range exprs {
		set.patterns = append(set.patterns, regexp.MustCompile(`(?i)`+e))
	}
	return set
}

// signatures is evaluated in order; a category's score is the fraction of
// its patterns that match.
var signatures = []signatureSet{
	sig(CategoryDeletion,
		`\b(?:delete|remove|rm|del|erase|wipe|destroy|unlink|rmdir)\b`,
		`\b(?:drop|truncate|clear)\s+(?:table|database|collection|schema)\b`,
		`\brm\s+-(?:rf|fr|r|f)\b`,
		`\b(?:rm|del|delete|remove|wipe)\b.*\s/[\w./-]*`,
	),
	sig(CategoryOverwrite,
		`\b(?:overwrite|replace|update|modify)\b.*\b(?:all|everything|entire)\b`,
		`>\s*[^>\s]`,
		`\bmv\b.*\b(?:replace|overwrite)\b`,
	),
	sig(CategoryExternalTransmission,
		`\b(?:send|email|mail|upload|post|transmit|export|forward)\b.*(?:\bto\b|@)`,
		`[\w.+-]+@[\w-]+\.[\w.-]+`,
		`\bcurl\b.*(?:-X\s*(?:POST|PUT)\b|--data\b|-d\s)`,
		`\b(?:wget|ftp|sftp|scp)\b.*(?:--post|--upload|\bput\b|\bupload\b|:\S*/)`,
	),
	sig(CategoryFinancial,
		`\b(?:payment|charge|bill|invoice|transaction|transfer)\b`,
		`\b(?:credit|debit|bank|account)\s+(?:card|number)\b`,
		`\b(?:stripe|paypal|venmo|cashapp)\b`,
		`\$\d+(?:\.\d{2})?`,
	),
	sig(CategorySystemAccess,
		`\b(?:sudo|su|admin|root|administrator)\b`,
		`\b(?:passwd|password|credentials|auth)\b`,
		`\b(?:ssh|telnet|rdp|vnc)\b`,
		`\b(?:chmod|chown|chgrp)\b.*\b(?:777|666)\b`,
	),
	sig(CategoryDataExfiltration,
		`\b(?:dump|export|backup|copy)\b.*\b(?:database|db|data)\b`,
		`\b(?:select|extract)\b.*\b(?:password|secret|key|token)s?\b`,
		`\bbase64\b.*\b(?:encode|decode)\b`,
		`\b(?:zip|tar|compress)\b.*\b(?:sensitive|confidential)\b`,
	),
	sig(CategoryPrivilegeEscalation,
		`\b(?:escalate|elevate|privilege|permission)s?\b`,
		`\b(?:setuid|setgid|sticky)\b`,
		`\b(?:exploit|vulnerability|cve)\b`,
	),
	sig(CategoryMaliciousCode,
		`\b(?:eval|exec|system|shell_exec)\b`,
		`\b(?:injection|xss|csrf|sqli)\b`,
		`\b(?:malware|virus|trojan|backdoor|ransomware)\b`,
		`<script[^>]*>.*</script>`,
		`\b(?:buffer\s+overflow|heap\s+spray)\b`,
	),
	// .com is left out: it matches every domain name.
	sig(CategorySuspiciousFile,
		`\w\.(?:exe|bat|cmd|scr|pif)\b`,
		`\w\.(?:sh|bash|zsh|fish)\b`,
		`\w\.(?:ps1|psm1|psd1)\b`,
		`\w\.(?:jar|war|ear)\b`,
	),
	sig(CategoryUnauthorizedAccess,
		`\b(?:hack|crack|break|bypass|circumvent)\b`,
		`\b(?:brute\s+force|dictionary\s+attack)\b`,
		`\b(?:unauthorized|illegal|forbidden)\b`,
	),
}

// SignatureCount returns how many patterns a category owns.
func SignatureCount(c Category) int {
	for _, set := range signatures {
		if set.category == c {
			return len(set.patterns)
		}
	}
	return 0
}
