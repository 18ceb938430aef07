package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
	"github.com/lisuiheng/zenflow-go/guide"
	"github.com/lisuiheng/zenflow-go/logger"
	"github.com/lisuiheng/zenflow-go/protocols/gemini"
)

func (a *app) newController() (*core.Controller, error) {
	log := logger.Logger()
	provider := gemini.New(a.cfg.Gemini.APIKey, log,
		gemini.WithBaseURL(a.cfg.Gemini.LiveURL),
		gemini.WithModel(a.cfg.Gemini.LiveModel),
		gemini.WithVoice(a.cfg.Gemini.Voice),
	)
	openOutput := func(sampleRate, channels int) (audio.Output, error) {
		player, err := audio.NewPCMPlayer(sampleRate, channels, log)
		if err != nil {
			return nil, err
		}
		return player, nil
	}
	return core.NewController(provider, audio.NewMalgoMicrophone(log), openOutput, a.cfg.Audio, log)
}

// plan 运行规划会话，收到计划后可以直接生成引导稿
func (a *app) plan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	generate := fs.Bool("generate", false, "Generate a guide from the agreed plan when the session ends")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		plan    guide.Plan
		hasPlan bool
	)
	onResult := func(result core.ToolResult) {
		if result.Name != guide.PlanToolName {
			logger.Warn("Ignoring unexpected tool call", "name", result.Name)
			return
		}
		p, err := guide.PlanFromArgs(result.Args)
		if err != nil {
			logger.Warn("Planner returned an invalid plan", "error", err)
			return
		}
		mu.Lock()
		plan, hasPlan = p, true
		mu.Unlock()
		fmt.Fprintf(a.out, "\nPlan ready: %s [%s, %d min]\nPress Ctrl+C to finish.\n", p.Topic, p.Style, p.Duration)
	}

	if err := a.runLive(ctx, guide.PlannerSession(a.cfg.Gemini.Voice), onResult); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if !hasPlan {
		fmt.Fprintln(a.out, "No plan was agreed.")
		return nil
	}
	if !*generate {
		return nil
	}

	settings, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	g, err := a.service.Create(ctx, plan.Params(settings.Language.DisplayName()))
	if err != nil {
		return err
	}
	a.printGuide(g)
	return nil
}

// guide 以保存的引导稿为脚本运行实时引导会话
func (a *app) guide(ctx context.Context, args []string) error {
	id, err := singleArg("guide", args)
	if err != nil {
		return err
	}
	g, err := a.service.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Starting guided session: %s\nPress Ctrl+C to finish.\n", g.Topic)
	return a.runLive(ctx, guide.GuideSession(g.Content, a.cfg.Gemini.Voice), nil)
}

// runLive 阻塞到用户中断、远端关闭或会话出错
func (a *app) runLive(ctx context.Context, cfg core.SessionConfig, onResult func(core.ToolResult)) error {
	ctrl, err := a.newController()
	if err != nil {
		return err
	}

	finished := make(chan error, 1)
	finish := func(err error) {
		select {
		case finished <- err:
		default:
		}
	}

	callbacks := core.Callbacks{
		OnState: func(state core.State) {
			fmt.Fprintf(os.Stderr, "[%s]\n", state)
			if state == core.StateClosed {
				finish(nil)
			}
		},
		OnTranscript: func(side core.TranscriptSide, text string) {
			logger.Debug("Transcript updated", "side", side, "text", text)
		},
		OnResult: onResult,
		OnError:  finish,
	}

	if err := ctrl.Open(ctx, cfg, callbacks); err != nil {
		return err
	}

	// 设置信号处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, closing live session", "signal", sig)
	case runErr = <-finished:
	case <-ctx.Done():
	}

	if err := ctrl.Close(); err != nil {
		logger.Error("Failed to close live session", "error", err)
	}

	if text := ctrl.Transcript(core.TranscriptInput); text != "" {
		fmt.Fprintf(a.out, "\nYou: %s\n", text)
	}
	if text := ctrl.Transcript(core.TranscriptOutput); text != "" {
		fmt.Fprintf(a.out, "Guide: %s\n", text)
	}
	return runErr
}
