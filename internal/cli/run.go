package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/justyntemme/gorack/pkg/backend"
	"github.com/justyntemme/gorack/pkg/debug"
	"github.com/justyntemme/gorack/pkg/engine"
	"github.com/justyntemme/gorack/pkg/engine/config"
	"github.com/justyntemme/gorack/pkg/engine/linkpeer"
	"github.com/justyntemme/gorack/pkg/engine/transport"
	"github.com/justyntemme/gorack/pkg/oscctl"
	"github.com/justyntemme/gorack/pkg/plugins"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Driver string
	Demo   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the rack and process audio until interrupted",
		Long: `Start the rack: bring up the engine, attach the audio driver and
serve OSC control if a port is configured.

Example:
  gorack run --config gorack.yaml --driver oto --demo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Driver, "driver", "dummy", "audio driver (dummy|oto)")
	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "load a sine + gain demo rack")

	return cmd
}

func loadConfig(opts *RunOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

func runHost(opts *RunOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log := debug.New(os.Stderr, "gorack", debug.ParseLevel(cfg.LogLevel))

	mode, err := cfg.EngineProcessMode()
	if err != nil {
		return err
	}

	var peer transport.SyncPeer
	if cfg.Link {
		lp := linkpeer.New(cfg.Tempo, cfg.BeatsPerBar, log)
		defer lp.Close()
		peer = lp
	}

	e := engine.New(log, peer)
	if err := e.Init(cfg.Name, mode); err != nil {
		return err
	}
	defer e.Close()

	e.SetTempo(cfg.Tempo)
	e.SetBeatsPerBar(cfg.BeatsPerBar)

	if opts.Demo {
		if _, err := e.AddPlugin(plugins.NewSine(220, 0.2)); err != nil {
			return err
		}
		if _, err := e.AddPlugin(plugins.NewGain()); err != nil {
			return err
		}
	}

	driver, err := newDriver(opts.Driver, e, cfg, log)
	if err != nil {
		return err
	}
	if err := driver.Start(); err != nil {
		return err
	}
	defer driver.Stop()

	if cfg.OSCPort != 0 {
		osc := oscctl.NewServer(e, log)
		if err := osc.Listen(cfg.OSCPort); err != nil {
			return err
		}
		defer osc.Close()
	}

	if cfg.Link {
		e.EnableSync(true)
	}
	e.TransportPlay()

	log.Info("%s running with the %s driver, ctrl-c to stop", cfg.Name, driver.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	return nil
}

func newDriver(name string, e *engine.Engine, cfg *config.Config, log *debug.Logger) (backend.Driver, error) {
	switch name {
	case "dummy":
		return backend.NewDummy(e, cfg.BufferSize, cfg.SampleRate, log), nil
	case "oto":
		return backend.NewOto(e, cfg.BufferSize, cfg.SampleRate, log), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}
