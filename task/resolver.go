package task

// ResolveListID picks the task list a session works against. An explicit
// override wins, then a team-derived list so teammates share one graph, then
// the default list.
func ResolveListID(override, team string) string {
	if override != "" {
		return override
	}
	if team != "" {
		return team
	}
	return "default"
}
