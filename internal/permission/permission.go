package permission

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is an atomic capability tag shared with clients. Values are part
// of the public API; do not rename.
type Permission string

const (
	Chat         Permission = "chat"
	FileUpload   Permission = "file_upload"
	FileDownload Permission = "file_download"

	ToolUsage        Permission = "tool_usage"
	WebSearch        Permission = "web_search"
	WeatherLookup    Permission = "weather_lookup"
	URLScraping      Permission = "url_scraping"
	CommandExecution Permission = "command_execution"

	WorkflowView       Permission = "workflow_view"
	WorkflowExecution  Permission = "workflow_execution"
	WorkflowCreation   Permission = "workflow_creation"
	WorkflowManagement Permission = "workflow_management"

	PluginView        Permission = "plugin_view"
	PluginExecution   Permission = "plugin_execution"
	PluginManagement  Permission = "plugin_management"
	PluginDevelopment Permission = "plugin_development"

	SystemAccess        Permission = "system_access"
	SystemDiagnostics   Permission = "system_diagnostics"
	SystemConfiguration Permission = "system_configuration"

	UserView       Permission = "user_view"
	UserManagement Permission = "user_management"
	RoleManagement Permission = "role_management"

	SecurityView       Permission = "security_view"
	SecurityManagement Permission = "security_management"
	AuditLogs          Permission = "audit_logs"

	AdminPanel Permission = "admin_panel"
	FullAccess Permission = "full_access"
)

// Version of the permission enumeration. Bump when adding or removing values.
const Version = 1

var allPermissions = []Permission{
	Chat, FileUpload, FileDownload,
	ToolUsage, WebSearch, WeatherLookup, URLScraping, CommandExecution,
	WorkflowView, WorkflowExecution, WorkflowCreation, WorkflowManagement,
	PluginView, PluginExecution, PluginManagement, PluginDevelopment,
	SystemAccess, SystemDiagnostics, SystemConfiguration,
	UserView, UserManagement, RoleManagement,
	SecurityView, SecurityManagement, AuditLogs,
	AdminPanel, FullAccess,
}

func All() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

func Parse(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allPermissions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPermission, s)
}

func (p Permission) String() string { return string(p) }

// DisplayName turns "workflow_view" into "Workflow View".
func (p Permission) DisplayName() string {
	parts := strings.Split(string(p), "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

// Group is the leading segment, e.g. "Workflow".
func (p Permission) Group() string {
	head, _, _ := strings.Cut(string(p), "_")
	if head == "" {
		return ""
	}
	return strings.ToUpper(head[:1]) + head[1:]
}

type PermissionInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
}

func AllInfo() []PermissionInfo {
	out := make([]PermissionInfo, 0, len(allPermissions))
	for _, p := range allPermissions {
		out = append(out, PermissionInfo{Name: p.String(), DisplayName: p.DisplayName(), Category: p.Group()})
	}
	return out
}

// Set is an unordered permission set. The zero value is not usable; use NewSet.
type Set map[Permission]struct{}

func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

func (s Set) Union(other Set) Set {
	out := s.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

func (s Set) Minus(other Set) Set {
	out := make(Set, len(s))
	for p := range s {
		if !other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// IsSuperset reports whether s contains every element of other.
func (s Set) IsSuperset(other Set) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order for stable output.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.String()
	}
	return out
}
