package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/frahmantamala/assistant-guard/internal/permission"
)

var ErrUnknownCapability = errors.New("unknown capability")

// Capability names one kind of external effect the assistant can trigger.
type Capability string

const (
	SystemInfo       Capability = "system_info"
	ManageFiles      Capability = "manage_files"
	RunScript        Capability = "run_script"
	TriggerWorkflow  Capability = "trigger_workflow"
	SendEmail        Capability = "send_email"
	SetupSlackBot    Capability = "setup_slack_bot"
	DeployCode       Capability = "deploy_code"
	GitHubCreateRepo Capability = "github_create_repo"
	GitHubDeploy     Capability = "github_deploy"
	GitHubListRepos  Capability = "github_list_repos"
	GitHubGetFile    Capability = "github_get_file"
	GitHubListFiles  Capability = "github_list_files"
	GitHubRepoInfo   Capability = "github_repo_info"
	RailwayDeploy    Capability = "railway_deploy"
	RailwayStatus    Capability = "railway_status"
	RailwaySetup     Capability = "railway_setup"
	RailwayLogs      Capability = "railway_logs"
	CICDDeploy       Capability = "cicd_deploy"
	CICDSetup        Capability = "cicd_setup"
)

type capabilitySpec struct {
	category    permission.Category
	description string
}

var capabilities = []struct {
	name Capability
	capabilitySpec
}{
	{SystemInfo, capabilitySpec{permission.CategorySystem, "Report host and runtime status"}},
	{ManageFiles, capabilitySpec{permission.CategoryFileOperation, "Create, read, update or delete files in safe directories"}},
	{RunScript, capabilitySpec{permission.CategorySystem, "Run a script in a sandbox"}},
	{TriggerWorkflow, capabilitySpec{permission.CategoryWorkflow, "Start an automation workflow"}},
	{SendEmail, capabilitySpec{permission.CategoryTool, "Send an email"}},
	{SetupSlackBot, capabilitySpec{permission.CategoryPlugin, "Configure the chat bot integration"}},
	{DeployCode, capabilitySpec{permission.CategorySystem, "Deploy generated code"}},
	{GitHubCreateRepo, capabilitySpec{permission.CategoryTool, "Create a source repository"}},
	{GitHubDeploy, capabilitySpec{permission.CategoryTool, "Commit code to a source repository"}},
	{GitHubListRepos, capabilitySpec{permission.CategoryTool, "List source repositories"}},
	{GitHubGetFile, capabilitySpec{permission.CategoryTool, "Read a file from a source repository"}},
	{GitHubListFiles, capabilitySpec{permission.CategoryTool, "List files in a source repository"}},
	{GitHubRepoInfo, capabilitySpec{permission.CategoryTool, "Describe a source repository"}},
	{RailwayDeploy, capabilitySpec{permission.CategorySystem, "Deploy a project to the hosting platform"}},
	{RailwayStatus, capabilitySpec{permission.CategorySystem, "Report deployment status"}},
	{RailwaySetup, capabilitySpec{permission.CategorySystem, "Provision a hosting project"}},
	{RailwayLogs, capabilitySpec{permission.CategorySystem, "Fetch deployment logs"}},
	{CICDDeploy, capabilitySpec{permission.CategoryWorkflow, "Run the full delivery pipeline"}},
	{CICDSetup, capabilitySpec{permission.CategoryWorkflow, "Configure the delivery pipeline"}},
}

var byName = func() map[Capability]capabilitySpec {
	m := make(map[Capability]capabilitySpec, len(capabilities))
	for _, c := range capabilities {
		m[c.name] = c.capabilitySpec
	}
	return m
}()

// Capabilities returns every declared capability in a stable order.
func Capabilities() []Capability {
	out := make([]Capability, 0, len(capabilities))
	for _, c := range capabilities {
		out = append(out, c.name)
	}
	return out
}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := byName[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
	return c, nil
}

func (c Capability) Category() permission.Category { return byName[c].category }

func (c Capability) Description() string { return byName[c].description }

func (c Capability) String() string { return string(c) }
