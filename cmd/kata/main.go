// Command kata runs a single agent task: it loads config, picks a version
// capability set, wires the tools, and drives the turn loop until the model
// answers or the turn budget runs out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	kata "github.com/edenmoss/kata"
	"github.com/edenmoss/kata/internal/config"
	"github.com/edenmoss/kata/observer"
	"github.com/edenmoss/kata/provider/anthropic"
	"github.com/edenmoss/kata/task"
	"github.com/edenmoss/kata/tools/agent"
	"github.com/edenmoss/kata/tools/file"
	"github.com/edenmoss/kata/tools/shell"
	"github.com/edenmoss/kata/tools/skill"
	"github.com/edenmoss/kata/tools/tasktool"
	"github.com/edenmoss/kata/tools/team"
	"github.com/edenmoss/kata/tools/todo"
)

func main() {
	versionFlag := flag.String("version", "", "agent version (v0..v6, overrides config)")
	configFlag := flag.String("config", "", "path to kata.toml")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: kata [-version vN] [-config path] <task>")
		os.Exit(2)
	}
	taskText := strings.Join(flag.Args(), " ")

	cfg := config.Load(*configFlag)
	if *versionFlag != "" {
		cfg.Agent.Version = *versionFlag
	}
	version, err := kata.LookupVersion(cfg.Agent.Version)
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	var tracer kata.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer shutdown(ctx)
		tracer = observer.NewTracer()
	}

	// One task list per resolved id, each in its own directory.
	listID := task.ResolveListID(cfg.Tasks.ListID, cfg.Tasks.Team)
	store, err := task.OpenFileStore(filepath.Join(cfg.Tasks.Root, listID))
	if err != nil {
		log.Fatalf("open task store: %v", err)
	}
	defer store.Close()
	manager := task.NewManager(store, task.WithActor("kata"), task.WithLogger(logger))

	session := kata.NewSession("kata", cfg.Agent.WorkspacePath)
	session.BindTasks(manager)

	provOpts := []anthropic.ProviderOption{anthropic.WithLogger(logger)}
	if cfg.Provider.BaseURL != "" {
		provOpts = append(provOpts, anthropic.WithBaseURL(cfg.Provider.BaseURL))
	}
	provider := anthropic.NewProvider(cfg.Provider.APIKey, cfg.Provider.Model, provOpts...)
	retrying := kata.WithRetry(provider, kata.RetryLogger(logger))

	tools := buildTools(version, cfg, session, manager, retrying, logger)
	if inst != nil {
		for i, tl := range tools {
			tools[i] = observer.WrapTool(tl, inst)
		}
	}

	opts := []kata.LoopOption{
		kata.WithTools(tools...),
		kata.WithSession(session),
		kata.WithMaxTurns(cfg.Agent.MaxTurns),
		kata.WithResultBudget(cfg.Agent.ResultBudget),
		kata.WithGuard(kata.NewInjectionGuard()),
		kata.WithLogger(logger),
	}
	if planTool := version.PlanTool(); planTool != "" {
		opts = append(opts, kata.WithPlanReminder(planTool, 3))
	}
	if tracer != nil {
		opts = append(opts, kata.WithTracer(tracer))
	}

	loop := kata.NewLoop(retrying, opts...)
	outcome, err := loop.Run(ctx, taskText)
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	if outcome.Exhausted {
		fmt.Printf("incomplete after %d turns\n", cfg.Agent.MaxTurns)
		os.Exit(1)
	}
	fmt.Println(outcome.Text)
}

func buildTools(v kata.Version, cfg config.Config, session *kata.Session, manager *task.Manager, provider kata.Provider, logger *slog.Logger) []kata.Tool {
	var tools []kata.Tool
	if v.Shell {
		tools = append(tools, shell.New(cfg.Agent.WorkspacePath, cfg.Agent.CommandTimeout))
	}
	if v.Files {
		tools = append(tools, file.New(cfg.Agent.WorkspacePath))
	}
	if v.Todo {
		tools = append(tools, todo.New(todo.NewManager()))
	}
	if v.Agents {
		tools = append(tools, agent.New(provider, cfg.Agent.WorkspacePath,
			agent.WithMaxTurns(cfg.Agent.MaxTurns),
			agent.WithCommandTimeout(cfg.Agent.CommandTimeout),
			agent.WithLogger(logger)))
	}
	if v.Skills {
		loader, err := skill.NewLoader(cfg.Agent.SkillsPath)
		if err != nil {
			log.Fatalf("load skills: %v", err)
		}
		tools = append(tools, skill.New(loader))
	}
	if v.Teams {
		tools = append(tools, team.New(session))
	}
	if v.Tasks {
		tools = append(tools, tasktool.New(manager, session))
	}
	return tools
}
