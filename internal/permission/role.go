package permission

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleDeveloper  Role = "developer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// roleAliases maps legacy role names onto the canonical enumeration.
var roleAliases = map[string]Role{
	"agent":  RoleDeveloper,
	"viewer": RoleGuest,
}

var orderedRoles = []Role{RoleGuest, RoleUser, RoleDeveloper, RoleAdmin, RoleSuperAdmin}

func Roles() []Role {
	out := make([]Role, len(orderedRoles))
	copy(out, orderedRoles)
	return out
}

func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, r := range orderedRoles {
		if Role(name) == r {
			return r, nil
		}
	}
	if r, ok := roleAliases[name]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func IsValidRole(s string) bool {
	_, err := ParseRole(s)
	return err == nil
}

func (r Role) String() string { return string(r) }

// Level orders roles from guest (0) to super_admin (4); -1 for unknown.
func (r Role) Level() int {
	for i, known := range orderedRoles {
		if r == known {
			return i
		}
	}
	return -1
}

func (r Role) AtLeast(other Role) bool {
	return r.Level() >= other.Level()
}

// IsAdministrative is true for admin and super_admin.
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type RoleDefinition struct {
	Name        Role
	DisplayName string
	Description string
	Permissions Set
}

// Each role lists its full permission set. Nothing is inherited at runtime;
// the hierarchy is checked by tests instead.
var roleDefinitions = map[Role]RoleDefinition{
	RoleGuest: {
		Name:        RoleGuest,
		DisplayName: "Guest",
		Description: "Limited access for unauthenticated users",
		Permissions: NewSet(
			Chat,
		),
	},
	RoleUser: {
		Name:        RoleUser,
		DisplayName: "User",
		Description: "Standard user with basic functionality",
		Permissions: NewSet(
			Chat, FileUpload, FileDownload,
			ToolUsage, WebSearch, WeatherLookup, URLScraping,
			WorkflowView, WorkflowExecution,
			PluginView, PluginExecution,
		),
	},
	RoleDeveloper: {
		Name:        RoleDeveloper,
		DisplayName: "Developer",
		Description: "Developer with advanced tools and workflow access",
		Permissions: NewSet(
			Chat, FileUpload, FileDownload,
			ToolUsage, WebSearch, WeatherLookup, URLScraping, CommandExecution,
			WorkflowView, WorkflowExecution, WorkflowCreation,
			PluginView, PluginExecution, PluginDevelopment,
			SystemDiagnostics,
			SecurityView, AuditLogs,
		),
	},
	RoleAdmin: {
		Name:        RoleAdmin,
		DisplayName: "Administrator",
		Description: "Administrator with system management capabilities",
		Permissions: NewSet(
			Chat, FileUpload, FileDownload,
			ToolUsage, WebSearch, WeatherLookup, URLScraping, CommandExecution,
			WorkflowView, WorkflowExecution, WorkflowCreation, WorkflowManagement,
			PluginView, PluginExecution, PluginManagement, PluginDevelopment,
			SystemAccess, SystemDiagnostics, SystemConfiguration,
			UserView, UserManagement,
			SecurityView, SecurityManagement, AuditLogs,
			AdminPanel,
		),
	},
	RoleSuperAdmin: {
		Name:        RoleSuperAdmin,
		DisplayName: "Super Administrator",
		Description: "Full system access and control",
		Permissions: NewSet(
			Chat, FileUpload, FileDownload,
			ToolUsage, WebSearch, WeatherLookup, URLScraping, CommandExecution,
			WorkflowView, WorkflowExecution, WorkflowCreation, WorkflowManagement,
			PluginView, PluginExecution, PluginManagement, PluginDevelopment,
			SystemAccess, SystemDiagnostics, SystemConfiguration,
			UserView, UserManagement, RoleManagement,
			SecurityView, SecurityManagement, AuditLogs,
			AdminPanel, FullAccess,
		),
	},
}

// RolePermissions returns a copy of the base set; unknown roles get guest's.
func RolePermissions(r Role) Set {
	def, ok := roleDefinitions[r]
	if !ok {
		def = roleDefinitions[RoleGuest]
	}
	return def.Permissions.Clone()
}

func Definition(r Role) (RoleDefinition, bool) {
	def, ok := roleDefinitions[r]
	if !ok {
		return RoleDefinition{}, false
	}
	def.Permissions = def.Permissions.Clone()
	return def, true
}

type RoleInfo struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	Description     string   `json:"description"`
	Level           int      `json:"level"`
	Permissions     []string `json:"permissions"`
	PermissionCount int      `json:"permission_count"`
}

func Info(r Role) RoleInfo {
	def, ok := Definition(r)
	if !ok {
		def, _ = Definition(RoleGuest)
	}
	return RoleInfo{
		Name:            def.Name.String(),
		DisplayName:     def.DisplayName,
		Description:     def.Description,
		Level:           def.Name.Level(),
		Permissions:     def.Permissions.Strings(),
		PermissionCount: len(def.Permissions),
	}
}

func AllRoleInfo() []RoleInfo {
	out := make([]RoleInfo, 0, len(orderedRoles))
	for _, r := range orderedRoles {
		out = append(out, Info(r))
	}
	return out
}
