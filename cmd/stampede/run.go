package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/stampede-rl/stampede/internal/backend/cpu"
	"github.com/stampede-rl/stampede/internal/backend/webgpu"
	"github.com/stampede-rl/stampede/internal/config"
	"github.com/stampede-rl/stampede/internal/device"
	"github.com/stampede-rl/stampede/internal/logger"
	"github.com/stampede-rl/stampede/internal/runtime"
	"github.com/stampede-rl/stampede/internal/trace"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to the experiment YAML (optional, built-in defaults otherwise)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Value: "cpu",
			Usage: "Execution backend: cpu or webgpu",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "Emit JSON logs instead of text",
		},
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	if path := cmd.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func openBackend(name string) (device.Backend, error) {
	switch name {
	case "cpu":
		return cpu.New(), nil
	case "webgpu":
		b, err := webgpu.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (accepted: cpu, webgpu)", name)
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the demo environment for one episode and export its trace",
		Flags: append(commonFlags(),
			&cli.Int64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "Sampler seed",
			},
			&cli.BoolFlag{
				Name:  "export-trace",
				Usage: "Write the logged episode trace under the saving dir",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.New(os.Stderr, cmd.String("log-level"), cmd.Bool("log-json"))

			backend, err := openBackend(cmd.String("backend"))
			if err != nil {
				return err
			}
			rt, err := runtime.New(cfg, backend, runtime.WithLogger(log))
			if err != nil {
				_ = backend.Close()
				return err
			}
			defer rt.Close()

			obs, err := rt.RunDemo(cmd.Int64("seed"))
			if err != nil {
				return err
			}
			log.Info("episode complete",
				"final_obs", obs.AsFloat32(),
				"resident_bytes", rt.Stats().ResidentBytes)

			if cmd.Bool("export-trace") {
				w, err := trace.NewWriter(cfg.Saving.Dir)
				if err != nil {
					return err
				}
				for _, name := range []string{runtime.DemoObs, runtime.DemoActions} {
					ep, err := rt.FetchEpisode(name)
					if err != nil {
						return err
					}
					if err := w.WriteEpisode(name, ep); err != nil {
						return err
					}
				}
				log.Info("trace written", "run_id", w.RunID(), "dir", w.Dir())
			}

			out, err := json.MarshalIndent(rt.Stats(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func benchCmd() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure demo environment steps per second",
		Flags: append(commonFlags(),
			&cli.Int64Flag{
				Name:  "iterations",
				Value: 100,
				Usage: "Number of episodes to run",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.New(os.Stderr, cmd.String("log-level"), cmd.Bool("log-json"))

			iterations := int(cmd.Int64("iterations"))
			steps := 0
			start := time.Now()
			for i := 0; i < iterations; i++ {
				backend, err := openBackend(cmd.String("backend"))
				if err != nil {
					return err
				}
				rt, err := runtime.New(cfg, backend, runtime.WithLogger(log))
				if err != nil {
					_ = backend.Close()
					return err
				}
				if _, err := rt.RunDemo(int64(i)); err != nil {
					_ = rt.Close()
					return err
				}
				steps += cfg.Env.EpisodeLength
				if err := rt.Close(); err != nil {
					return err
				}
			}
			elapsed := time.Since(start)
			fmt.Printf("%d steps in %s (%.0f steps/s, %d envs x %d agents)\n",
				steps, elapsed, float64(steps)/elapsed.Seconds(),
				cfg.Env.NumEnvs, cfg.Env.NumAgents)
			return nil
		},
	}
}
