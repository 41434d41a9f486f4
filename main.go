// agentlz - terminal client for agent conversations.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentlz/agentlz-tui/internal/agentapi"
	"github.com/agentlz/agentlz-tui/internal/cli"
	"github.com/agentlz/agentlz-tui/internal/config"
	"github.com/agentlz/agentlz-tui/internal/model"
	"github.com/agentlz/agentlz-tui/internal/session"
	"github.com/agentlz/agentlz-tui/internal/ui/chat"
	"github.com/agentlz/agentlz-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdVersion:
		cli.ExitOnError(cli.PrintVersion(os.Stdout, args.JSON))
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		if len(args.Raw) > 0 {
			fmt.Fprintf(os.Stderr, "\nunknown command %q\n", args.Raw[0])
			os.Exit(cli.ExitUsageError)
		}
	case cli.CmdConfig:
		cli.ExitOnError(cli.HandleConfig(os.Stdout, args))
	default:
		term := cli.DetectTerminal()
		tui, err := cli.ChooseFrontEnd(cmd, args, term)
		if err != nil {
			cli.ExitOnError(err)
		}
		cli.ExitOnError(run(args, term, tui))
	}
}

// =============================================================================
// APPLICATION SETUP
// =============================================================================

// app holds everything both front ends share.
type app struct {
	cfg     *config.Config
	client  *agentapi.Client
	ctrl    *session.Controller
	watcher *config.Watcher
	logger  *slog.Logger
	closeFn func()
}

func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.closeFn != nil {
		a.closeFn()
	}
}

func run(args cli.Args, term cli.Terminal, tui bool) error {
	cfg, path, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg, args.Verbose)
	slog.SetDefault(logger)

	a, err := setup(cfg, path, logger)
	if err != nil {
		closeLog()
		return err
	}
	a.closeFn = closeLog
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.selectStartAgent(ctx); err != nil {
		return err
	}
	if args.Record > 0 {
		if _, err := a.ctrl.SelectRecord(ctx, model.RecordID(args.Record)); err != nil {
			return fmt.Errorf("open conversation %d: %w", args.Record, err)
		}
	}

	if tui {
		return a.runTUI(cfg)
	}
	return a.runChat(ctx, cfg, args, term)
}

func setup(cfg *config.Config, path string, logger *slog.Logger) (*app, error) {
	if strings.TrimSpace(cfg.Identity.Token) == "" {
		logger.Warn("no token configured; requests are sent unauthenticated")
	}

	client := agentapi.NewClient(agentapi.Options{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.Identity.Token,
		TenantID:          cfg.Identity.TenantID,
		ChatPath:          cfg.API.ChatPath,
		SessionsPath:      cfg.API.SessionsPath,
		RecordsPath:       cfg.API.RecordsPath,
		AgentsPath:        cfg.API.AgentsPath,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            logger,
	})

	ctrl := session.NewController(client, session.Config{
		UserID:  resolveUserID(cfg, logger),
		PerPage: cfg.History.PerPage,
		Logger:  logger,
	})

	a := &app{cfg: cfg, client: client, ctrl: ctrl, logger: logger}

	// Pick up rotated tokens without a restart.
	if _, err := os.Stat(path); err == nil {
		w, err := config.Watch(path, a.reload, logger)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			a.watcher = w
		}
	}
	return a, nil
}

func resolveUserID(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Identity.UserID != "" {
		return cfg.Identity.UserID
	}
	if cfg.Identity.Token == "" {
		return ""
	}
	id, err := agentapi.UserIDFromToken(cfg.Identity.Token)
	if err != nil {
		logger.Warn("cannot derive user id from token", "error", err)
		return ""
	}
	return id
}

// reload applies credential changes from the config file.
func (a *app) reload(cfg *config.Config, err error) {
	if err != nil {
		a.logger.Warn("config reload failed", "error", err)
		return
	}
	a.client.SetToken(cfg.Identity.Token)
	a.client.SetTenant(cfg.Identity.TenantID)
	a.ctrl.SetUserID(resolveUserID(cfg, a.logger))
	a.logger.Info("config reloaded")
}

// selectStartAgent picks the configured agent, or the first accessible one.
func (a *app) selectStartAgent(ctx context.Context) error {
	want := a.cfg.Identity.AgentID
	agents, _, err := a.client.ListAccessibleAgents(ctx, "", 1, 50)
	if err != nil {
		if want == "" {
			return fmt.Errorf("list agents: %w", err)
		}
		// The agent list is only needed for names; talk to the id as given.
		a.logger.Warn("list agents failed", "error", err)
		a.ctrl.SelectAgent(model.AgentInfo{ID: want})
		return nil
	}

	if want != "" {
		agent, ok := model.FindAgent(agents, want)
		if !ok {
			agent = model.AgentInfo{ID: want}
		}
		a.ctrl.SelectAgent(agent)
		return nil
	}
	if len(agents) > 0 {
		a.ctrl.SelectAgent(agents[0])
	}
	return nil
}

func (a *app) runTUI(cfg *config.Config) error {
	theme := styles.NewTheme(cfg.UI.Theme)
	m := chat.New(chat.Options{
		Controller:     a.ctrl,
		Backend:        a.client,
		Theme:          theme,
		Markdown:       cfg.UI.Markdown,
		ShowTimestamps: cfg.UI.ShowTimestamps,
		RecordsPerPage: cfg.History.RecordsPerPage,
		TopThreshold:   cfg.History.TopThreshold,
		ExportDir:      cfg.UI.ExportDir,
		Logger:         a.logger,
	})
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse wheel scrolling
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	if fm, ok := final.(chat.Model); ok && fm.Error() != "" {
		a.logger.Info("tui exited with error shown", "error", fm.Error())
	}
	return nil
}

func (a *app) runChat(ctx context.Context, cfg *config.Config, args cli.Args, term cli.Terminal) error {
	theme := styles.NewTheme(cfg.UI.Theme)
	repl := cli.NewREPL(cli.REPLOptions{
		Controller:     a.ctrl,
		Backend:        a.client,
		Out:            os.Stdout,
		Markdown:       cfg.UI.Markdown && term.Styled,
		MarkdownStyle:  theme.GlamourStyle(),
		Width:          term.Width,
		RecordsPerPage: cfg.History.RecordsPerPage,
		ExportDir:      cfg.UI.ExportDir,
		Quiet:          args.Quiet,
		Logger:         a.logger,
	})
	defer repl.Close()

	if !term.Interactive {
		return repl.Run(ctx, cli.NewLineScanner(os.Stdin))
	}
	in := cli.NewChatCLI()
	defer in.Close()
	return repl.Run(ctx, in)
}

// =============================================================================
// LOGGING
// =============================================================================

// newLogger writes structured logs to the configured file. The terminal is
// owned by the UI, so nothing is logged to stderr.
func newLogger(cfg *config.Config, verbose bool) (*slog.Logger, func()) {
	level := parseLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}

	path := cfg.Log.Path
	if path == "" {
		p, err := config.DefaultLogPath()
		if err != nil {
			return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}

	f, err := tea.LogToFile(path, "")
	if err != nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { f.Close() }
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
