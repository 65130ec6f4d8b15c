package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebovdev/streamcore/internal/config"
	"github.com/glebovdev/streamcore/internal/player"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag  = flag.Bool("version", false, "Show version information")
	debugFlag    = flag.Bool("debug", false, "Enable debug logging")
	configFlag   = flag.String("config", "", "Path to config file (default ~/"+config.ConfigDir+"/"+config.ConfigFileName+")")
	radioFlag    = flag.Bool("radio", false, "Request ICY metadata and print track titles")
	loopFlag     = flag.Bool("loop", false, "Loop local files forever")
	toneFlag     = flag.Float64("tone", 0, "Play a sine tone of this frequency in Hz instead of a source")
	durationFlag = flag.Duration("duration", 2*time.Second, "Length of the -tone")
	seekFlag     = flag.Duration("seek", 0, "Seek into a local file before playing")
	metricsFlag  = flag.String("metrics", "", "Serve prometheus metrics on this address")
	volumeFlag   = flag.Float64("volume", config.DefaultVolume, "Linear volume, 0 to 2")
	insecureFlag = flag.Bool("insecure", false, "Accept invalid TLS certificates")
	saveFlag     = flag.Bool("save", false, "Write the effective volume, TLS and metrics settings to the config file")
)

const pollInterval = 250 * time.Millisecond

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n", config.AppName, config.AppVersion, config.AppTagline)
		fmt.Fprintf(os.Stderr, "%s\n%s\n\n", config.AppDescription, config.AppProjectURL)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file|url>...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			}
		}
	}
}

// printer reports session notifications on the console.
type printer struct{}

func (printer) OnEvent(event player.Event) {
	log.Debug().Str("event", event.String()).Msg("Player event")
}

func (printer) OnMetadata(key, value string) {
	switch key {
	case "StreamTitle":
		fmt.Printf("Now playing: %s\n", value)
	case "icy-name":
		fmt.Printf("Station: %s\n", value)
	default:
		log.Info().Str(key, value).Msg("Metadata")
	}
}

func (printer) OnError(message string) {
	log.Error().Msg(message)
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		fmt.Println(config.AppProjectShort)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFlag)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(cfg.Level())
	if *debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Using default config")
	}

	applyFlags(cfg)
	if *saveFlag {
		if err := saveConfig(cfg, *configFlag); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
			os.Exit(1)
		}
		if flag.NArg() == 0 && *toneFlag == 0 {
			os.Exit(0)
		}
	}

	if flag.NArg() == 0 && *toneFlag == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	registry := player.Default(player.WithUserAgent(cfg.UserAgent))
	registry.SetAcceptInvalidCerts(cfg.AcceptInvalidCerts)
	if pems, err := cfg.ReadTrustedRoots(); err != nil {
		log.Warn().Err(err).Msg("Ignoring trusted roots")
	} else if len(pems) > 0 {
		registry.SetTrustedRoots(pems)
		log.Debug().Int("count", len(pems)).Msg("Trusted roots loaded")
	}

	h, err := registry.Create()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio output")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, registry, h, cfg.Volume)

	if err := registry.Destroy(h); err != nil {
		log.Error().Err(err).Msg("Error releasing player")
	}
	log.Debug().Msgf("%s stopped", config.AppName)
	os.Exit(code)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// applyFlags overrides the config with the flags given on the command line.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "volume":
			cfg.Volume = config.ClampVolume(*volumeFlag)
		case "insecure":
			cfg.AcceptInvalidCerts = *insecureFlag
		case "metrics":
			cfg.MetricsAddr = *metricsFlag
		}
	})
}

func saveConfig(cfg *config.Config, path string) error {
	if path != "" {
		if err := cfg.SaveFile(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("Config saved")
		return nil
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	if path, err := config.GetConfigPath(); err == nil {
		log.Info().Str("path", path).Msg("Config saved")
	}
	return nil
}

func run(ctx context.Context, registry *player.Registry, h player.Handle, volume float64) int {
	if err := registry.SetCallback(h, printer{}); err != nil {
		log.Error().Err(err).Msg("Failed to set callback")
		return 1
	}
	if err := registry.SetVolume(h, volume); err != nil {
		log.Error().Err(err).Msg("Failed to set volume")
		return 1
	}

	if *toneFlag != 0 {
		if err := registry.PlayTone(h, *toneFlag, *durationFlag); err != nil {
			return report(err)
		}
	}

	for _, source := range flag.Args() {
		if err := play(registry, h, source); err != nil {
			return report(err)
		}
	}

	if *seekFlag > 0 {
		if err := registry.Seek(h, *seekFlag); err != nil {
			log.Warn().Err(err).Msg("Seek failed")
		}
	}

	return wait(ctx, registry, h)
}

func play(registry *player.Registry, h player.Handle, source string) error {
	if !strings.Contains(source, "://") {
		return registry.PlayFile(h, source, *loopFlag)
	}
	if *radioFlag {
		return registry.PlayRadio(h, source)
	}
	return registry.PlayURL(h, source)
}

// wait blocks until the queue drains or ctx is cancelled.
func wait(ctx context.Context, registry *player.Registry, h player.Handle) int {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal, cleaning up...")
			if err := registry.Stop(h); err != nil {
				log.Debug().Err(err).Msg("Stop failed")
			}
			return 0
		case <-ticker.C:
			empty, err := registry.IsEmpty(h)
			if err != nil {
				return report(err)
			}
			if empty {
				return 0
			}
			if *debugFlag {
				pos, _ := registry.Position(h)
				if d, known, _ := registry.Duration(h); known {
					log.Debug().Msgf("Position %s / %s", pos.Truncate(time.Second), d.Truncate(time.Second))
				}
			}
		}
	}
}

func report(err error) int {
	kind := player.Classify(err)
	event := log.Error().Err(err).Str("kind", kind.String())
	if code := player.StatusCode(err); code != 0 {
		event = event.Int("status", code)
	}
	event.Msg("Playback failed")
	return 1
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}
