package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

func buildRunCmd() *cobra.Command {
	var (
		url         string
		task        string
		actionType  string
		target      string
		showBrowser bool
		approach    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single automation action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd.Context(), logger(), cmd, url, task, actionType, target, showBrowser, approach)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Target page URL")
	cmd.Flags().StringVar(&task, "task", "", "Plain-language description of the task")
	cmd.Flags().StringVar(&actionType, "action", string(model.ActionClick), "Action type: click, type, select, clear, extract, submit")
	cmd.Flags().StringVar(&target, "target", "", "Description of the element to act on")
	cmd.Flags().BoolVar(&showBrowser, "show-browser", false, "Run with a visible browser window")
	cmd.Flags().StringVar(&approach, "force-approach", "", "Force a specific approach: dom, ai_assist, vision")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func runAction(parent context.Context, log zerolog.Logger, cmd *cobra.Command, url, task, actionType, target string, showBrowser bool, approach string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath, _ := cmd.Flags().GetString("config")
	sessionDB, _ := cmd.Flags().GetString("session-db")
	credDir, _ := cmd.Flags().GetString("credential-dir")

	eng, err := buildEngine(ctx, log, configPath, showBrowser, sessionDB, credDir, url)
	if err != nil {
		fatal("build engine: %v", err)
	}
	defer eng.Close()

	req := model.ActionRequest{
		URL:               url,
		TaskDescription:   task,
		ActionType:        model.ActionType(actionType),
		TargetDescription: target,
		ShowBrowser:       showBrowser,
	}
	if approach != "" {
		a := model.Approach(approach)
		req.ForceApproach = &a
	}

	start := time.Now()
	var result model.ActionResult
	if req.ForceApproach != nil {
		result, err = eng.Orchestrator.ExecuteWithApproach(ctx, req, *req.ForceApproach)
	} else {
		result, err = eng.Orchestrator.Execute(ctx, req)
	}
	elapsed := time.Since(start)

	if result.Success {
		green.Printf("✅ %s succeeded via %s (%.2fs, confidence %.2f)\n", actionType, result.ApproachUsed, elapsed.Seconds(), result.Confidence)
		persistStorageState(eng, log)
	} else {
		red.Printf("❌ %s failed via %s: %s\n", actionType, result.ApproachUsed, result.ErrorMessage)
		if result.Recommendation != "" {
			yellow.Printf("   ⚠ %s\n", result.Recommendation)
		}
	}
	if len(result.ResultData) > 0 {
		dim.Printf("   data: %v\n", result.ResultData)
	}

	if err != nil {
		os.Exit(1)
	}
	return nil
}

// persistStorageState saves the default context's current cookies and
// localStorage origins back to the session store so the next run
// against the same domain can skip re-login, mirroring the teacher's
// --save-state flag.
func persistStorageState(eng *engine, log zerolog.Logger) {
	if eng.StateDomain == "" {
		return
	}
	state, err := eng.Browser.StorageState("default")
	if err != nil {
		log.Warn().Err(err).Str("domain", eng.StateDomain).Msg("failed to capture storage state")
		return
	}
	if err := eng.Sessions.Save(eng.StateDomain, state, 0); err != nil {
		log.Warn().Err(err).Str("domain", eng.StateDomain).Msg("failed to persist storage state")
	}
}

func logger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
