package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/lisuiheng/zenflow-go/ai"
	"github.com/lisuiheng/zenflow-go/audio"
	"github.com/lisuiheng/zenflow-go/core"
	"github.com/lisuiheng/zenflow-go/logger"
	"github.com/lisuiheng/zenflow-go/protocols/gemini"
)

const usage = `Usage: zenflow [-c config] [-debug] <command> [arguments]

Commands:
  generate    generate a meditation guide script
  list        list saved guides, newest first
  show        print a guide
  synthesize  synthesize a guide into a WAV file
  delete      delete a guide and its audio files
  settings    show or change settings
  plan        talk to the live planner to choose a topic
  guide       start a live guided session from a saved guide
`

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/zenflow/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging to stdout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// 加载配置
	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := initLogger(cfg, *debug); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if err := app.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("Command failed", "command", flag.Arg(0), "error", err)
		app.close()
		logger.Close()
		os.Exit(1)
	}
}

// loadConfig 加载配置文件，找不到默认配置文件时只使用默认值和环境变量
func loadConfig(configPath string) (core.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	// ZENFLOW_GEMINI_API_KEY 覆盖 gemini.api_key
	v.SetEnvPrefix("zenflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(configPath)
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/zenflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return core.Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg core.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return core.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.live_url", gemini.DefaultBaseURL)
	v.SetDefault("gemini.text_model", ai.DefaultTextModel)
	v.SetDefault("gemini.tts_model", ai.DefaultTTSModel)
	v.SetDefault("gemini.live_model", gemini.DefaultModel)
	v.SetDefault("gemini.voice", ai.DefaultVoice)

	v.SetDefault("audio.input_sample_rate", audio.InputSampleRate)
	v.SetDefault("audio.output_sample_rate", audio.OutputSampleRate)
	v.SetDefault("audio.frame_size", audio.DefaultFrameSize)

	v.SetDefault("storage.path", "data/zenflow.db")
	v.SetDefault("storage.audio_dir", "data/audio")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.outputs", []string{"stderr"})
}

// initLogger 初始化日志系统
func initLogger(cfg core.Config, debug bool) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Outputs: cfg.Logging.Outputs,
	}

	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}

	if err := logger.Init(logCfg); err != nil {
		return err
	}
	logger.Debug("Logger initialized", "level", logCfg.Level, "outputs", logCfg.Outputs)
	return nil
}
