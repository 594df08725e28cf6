// Package kata is a teaching scaffold for building an LLM-driven coding agent
// in Go, grown across numbered versions (v0..v6) that each add one capability.
//
// The root package defines the engine: the agent turn loop, the tool
// registry/dispatcher, and the chat protocol types. Concrete capabilities live
// in subpackages and plug in through the [Tool] interface:
//
//   - tools/shell — run shell commands (v0)
//   - tools/file — read, write, and edit files (v1)
//   - tools/todo — plan with a validated todo list (v2)
//   - tools/agent — delegate to isolated sub-agents (v3)
//   - tools/skill — load skill packages (v4)
//   - tools/team — coordinate teammate agents (v5)
//   - tools/tasktool — persistent tasks with dependencies (v6)
//
// The task store and dependency graph behind v6 live in the task package,
// with a file-backed store (one JSON record per task plus a high-watermark
// allocator) and a SQLite alternative in task/sqlite.
//
// # Quick start
//
//	provider := anthropic.NewProvider(apiKey, model)
//	session := kata.NewSession("agent-main", workspace)
//	loop := kata.NewLoop(provider,
//		kata.WithSession(session),
//		kata.WithTools(shell.New(workspace, 30), file.New(workspace)),
//		kata.WithMaxTurns(10),
//	)
//	outcome, err := loop.Run(ctx, "Write a hello world in Python")
//
// Every agent version is the same engine parameterized by a capability set
// (see [Version]); there is no inheritance ladder.
package kata
