package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/fall_monitor/internal/app"
	"github.com/relabs-tech/fall_monitor/internal/config"
)

func main() {
	configPath := flag.String("config", "", "optional configuration file for FALL_* thresholds")
	plotPath := flag.String("plot", "", "write a magnitude chart to this file (.png, .svg, .pdf)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: replay [-config file] <scenario|script.yaml>\n")
		fmt.Fprintf(flag.CommandLine.Output(), "built-in scenarios: fall, fall_recover, table_drop, running\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	settings, err := cfg.FallSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid fall settings: %v\n", err)
		os.Exit(1)
	}

	res, err := app.RunReplay(os.Stdout, flag.Arg(0), settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
	if *plotPath != "" {
		if err := app.PlotReplay(res, settings, *plotPath); err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("chart written to %s\n", *plotPath)
	}
}
