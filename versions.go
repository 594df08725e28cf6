package kata

import (
	"fmt"
	"sort"
	"strings"
)

// Version is a capability set: every agent version is the same engine
// parameterized by which tools are registered and which loop behaviors are
// active. Versions form a strict superset chain — each one adds exactly one
// capability to its predecessor.
type Version struct {
	Name        string
	Description string

	Shell  bool // bash
	Files  bool // read_file, write_file, edit_file
	Todo   bool // TodoWrite
	Agents bool // subagent delegation via shell re-entry
	Skills bool // Skill
	Teams  bool // TeamCreate, SendMessage, TeamDelete
	Tasks  bool // TaskCreate, TaskGet, TaskUpdate, TaskList + background

	// PlanReminder enables the planning nag on the loop (v2+). It keys off
	// TodoWrite until Tasks replace the todo list, then off TaskCreate.
	PlanReminder bool
}

// PlanTool returns the tool name the planning reminder keys off, or "" when
// reminders are disabled for this version.
func (v Version) PlanTool() string {
	if !v.PlanReminder {
		return ""
	}
	if v.Tasks {
		return "TaskCreate"
	}
	return "TodoWrite"
}

// versions is the capability ladder. The todo list is v2's planning surface;
// v6 replaces it with persistent tasks, so both are never active at once.
var versions = map[string]Version{
	"v0": {Name: "v0", Description: "bash only", Shell: true},
	"v1": {Name: "v1", Description: "file tools", Shell: true, Files: true},
	"v2": {Name: "v2", Description: "todo planning", Shell: true, Files: true, Todo: true, PlanReminder: true},
	"v3": {Name: "v3", Description: "subagents", Shell: true, Files: true, Todo: true, Agents: true, PlanReminder: true},
	"v4": {Name: "v4", Description: "skills", Shell: true, Files: true, Todo: true, Agents: true, Skills: true, PlanReminder: true},
	"v5": {Name: "v5", Description: "teams", Shell: true, Files: true, Todo: true, Agents: true, Skills: true, Teams: true, PlanReminder: true},
	"v6": {Name: "v6", Description: "task dependencies", Shell: true, Files: true, Agents: true, Skills: true, Teams: true, Tasks: true, PlanReminder: true},
}

// LookupVersion returns the capability set for a version name.
func LookupVersion(name string) (Version, error) {
	v, ok := versions[name]
	if !ok {
		return Version{}, fmt.Errorf("unknown version %q (have %s)", name, versionNames())
	}
	return v, nil
}

func versionNames() string {
	names := make([]string, 0, len(versions))
	for n := range versions {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
