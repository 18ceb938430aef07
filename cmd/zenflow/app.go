package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lisuiheng/zenflow-go/ai"
	"github.com/lisuiheng/zenflow-go/core"
	"github.com/lisuiheng/zenflow-go/guide"
	"github.com/lisuiheng/zenflow-go/logger"
	"github.com/lisuiheng/zenflow-go/storage"
)

type app struct {
	cfg     core.Config
	store   *storage.Store
	service *guide.Service
	out     io.Writer
	closed  bool
}

func newApp(ctx context.Context, cfg core.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.Storage.Path, logger.Logger())
	if err != nil {
		return nil, err
	}

	settings, err := store.GetSettings(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	// 设置中的服务地址优先于配置文件，实时会话始终使用 live_url
	baseURL := cfg.Gemini.BaseURL
	if settings.BaseURL != "" {
		baseURL = settings.BaseURL
	}
	client, err := ai.NewClient(ctx, ai.Config{
		APIKey:    cfg.Gemini.APIKey,
		BaseURL:   baseURL,
		TextModel: cfg.Gemini.TextModel,
		TTSModel:  cfg.Gemini.TTSModel,
		Voice:     cfg.Gemini.Voice,
	}, logger.Logger())
	if err != nil {
		store.Close()
		return nil, err
	}

	return assemble(cfg, store, client, os.Stdout), nil
}

func assemble(cfg core.Config, store *storage.Store, gen guide.Generator, out io.Writer) *app {
	return &app{
		cfg:     cfg,
		store:   store,
		service: guide.NewService(store, gen, cfg.Storage.AudioDir, logger.Logger()),
		out:     out,
	}
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true
	if err := a.store.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "generate":
		return a.generate(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "show":
		return a.show(ctx, args)
	case "synthesize":
		return a.synthesize(ctx, args)
	case "delete":
		return a.delete(ctx, args)
	case "settings":
		return a.settings(ctx, args)
	case "plan":
		return a.plan(ctx, args)
	case "guide":
		return a.guide(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	topic := fs.String("topic", "", "Meditation topic (required)")
	style := fs.String("style", string(guide.StyleCalm), "Style: Calm, Energizing, Sleep, Mindful or Breathwork")
	duration := fs.Int("duration", guide.DefaultDuration, "Duration in minutes")
	language := fs.String("lang", "", "Script language (defaults to the settings language)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, err := a.service.Create(ctx, guide.GenerationParams{
		Topic:    *topic,
		Language: *language,
		Style:    *style,
		Duration: *duration,
	})
	if err != nil {
		return err
	}
	a.printGuide(g)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	query := fs.String("q", "", "Filter by topic or content")
	if err := fs.Parse(args); err != nil {
		return err
	}

	guides, err := a.service.Search(ctx, *query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTYLE\tMIN\tAUDIOS\tTOPIC")
	for _, g := range guides {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			g.ID, g.CreatedAt.Local().Format(time.DateTime), g.Style, g.Duration, len(g.Audios), g.Topic)
	}
	return w.Flush()
}

func (a *app) show(ctx context.Context, args []string) error {
	id, err := singleArg("show", args)
	if err != nil {
		return err
	}
	g, err := a.service.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printGuide(g)
	return nil
}

func (a *app) synthesize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("synthesize", flag.ContinueOnError)
	voice := fs.String("voice", a.cfg.Gemini.Voice, "Prebuilt voice name")
	rate := fs.Float64("rate", 1.0, "Speaking rate hint")
	pitch := fs.Float64("pitch", 0, "Pitch hint in semitones")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := singleArg("synthesize", fs.Args())
	if err != nil {
		return err
	}

	meta, err := a.service.Synthesize(ctx, id, guide.SpeechParams{
		Voice:        *voice,
		SpeakingRate: *rate,
		Pitch:        *pitch,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  %.1fs  %s\n", meta.ID, meta.Duration, meta.URL)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	id, err := singleArg("delete", args)
	if err != nil {
		return err
	}
	return a.service.Delete(ctx, id)
}

func (a *app) settings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	language := fs.String("lang", "", "Interface language: en or zh")
	baseURL := fs.String("base-url", "", "Override the text and speech API endpoint (\"-\" clears it)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := a.service.Settings(ctx)
	if err != nil {
		return err
	}
	if *language != "" || *baseURL != "" {
		if *language != "" {
			settings.Language = guide.Language(*language)
		}
		switch *baseURL {
		case "":
		case "-":
			settings.BaseURL = ""
		default:
			settings.BaseURL = *baseURL
		}
		if err := a.service.SaveSettings(ctx, settings); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "language: %s\nbase_url: %s\n", settings.Language, settings.BaseURL)
	return nil
}

func (a *app) printGuide(g guide.Guide) {
	fmt.Fprintf(a.out, "%s  %s  [%s, %d min, %s]\n", g.ID, g.Topic, g.Style, g.Duration, g.Language)
	for _, au := range g.Audios {
		fmt.Fprintf(a.out, "  audio %s  %s  %.1fs  %s\n", au.ID, au.VoiceID, au.Duration, au.URL)
	}
	fmt.Fprintf(a.out, "\n%s\n", strings.TrimSpace(g.Content))
}

func singleArg(command string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: zenflow %s <guide-id>", command)
	}
	return args[0], nil
}
