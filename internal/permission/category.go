package permission

// Category is a coarse command class used by the dispatch boundary.
type Category string

const (
	CategoryChat          Category = "chat"
	CategoryTool          Category = "tool"
	CategoryFileOperation Category = "file_operation"
	CategoryWorkflow      Category = "workflow"
	CategoryPlugin        Category = "plugin"
	CategorySystem        Category = "system"
)

var categoryPermissions = map[Category]Permission{
	CategoryChat:          Chat,
	CategoryTool:          ToolUsage,
	CategoryFileOperation: FileUpload,
	CategoryWorkflow:      WorkflowExecution,
	CategoryPlugin:        PluginExecution,
	CategorySystem:        SystemAccess,
}

// CategoryPermission returns the permission gating a category. Unknown
// categories report ok=false and callers must deny.
func CategoryPermission(c Category) (Permission, bool) {
	p, ok := categoryPermissions[c]
	return p, ok
}

var toolPermissions = []struct {
	perm  Permission
	tools []string
}{
	{WebSearch, []string{"web_search"}},
	{WeatherLookup, []string{"weather_lookup"}},
	{URLScraping, []string{"web_scraper", "url_summarizer"}},
	{CommandExecution, []string{"command_executor"}},
}

// AccessibleTools lists tool identifiers reachable with the given set.
func AccessibleTools(s Set) []string {
	out := []string{}
	for _, tp := range toolPermissions {
		if s.Has(tp.perm) {
			out = append(out, tp.tools...)
		}
	}
	return out
}

// AccessibleWorkflows returns ["all"] for workflow managers.
func AccessibleWorkflows(s Set) []string {
	switch {
	case s.Has(WorkflowManagement):
		return []string{"all"}
	case s.Has(WorkflowExecution):
		return []string{"send_followup_email", "daily_summary"}
	default:
		return []string{}
	}
}

func AccessiblePlugins(s Set) []string {
	switch {
	case s.Has(PluginManagement):
		return []string{"all"}
	case s.Has(PluginExecution):
		return []string{"calculator", "text_processor"}
	default:
		return []string{}
	}
}
