package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"creditvault/config"
	"creditvault/observability/logging"
	"creditvault/services/portfoliod"
	"creditvault/services/portfoliod/navstore"

	"gopkg.in/yaml.v3"
)

const (
	replayCommand = "replay"
	reportCommand = "report"
	navCommand    = "nav"
	defaultConfig = "./config.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case replayCommand:
		err = runReplay(os.Args[2:])
	case reportCommand:
		err = runReport(os.Args[2:])
	case navCommand:
		err = runNAV(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: portfolioctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s -scenario file.yaml   replay a scripted scenario in memory\n", replayCommand)
	fmt.Fprintf(os.Stderr, "  %s -config config.toml   print the state of every configured vault\n", reportCommand)
	fmt.Fprintf(os.Stderr, "  %s -config config.toml -vault name   list recorded NAV snapshots\n", navCommand)
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet(replayCommand, flag.ExitOnError)
	path := fs.String("scenario", "", "Path to the YAML scenario")
	format := fs.String("format", "yaml", "Output format for the final reports (yaml or json)")
	fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("-scenario is required")
	}
	sc, err := loadScenario(*path)
	if err != nil {
		return err
	}
	reports, err := runScenario(context.Background(), sc, os.Stdout)
	if err != nil {
		return err
	}
	return render(os.Stdout, *format, reports)
}

func runReport(args []string) error {
	fs := flag.NewFlagSet(reportCommand, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to the portfoliod config file")
	format := fs.String("format", "yaml", "Output format (yaml or json)")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	reports := make([]portfoliod.Report, 0)
	for _, name := range rt.SortedVaults() {
		report, err := rt.Report(name)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}
	return render(os.Stdout, *format, reports)
}

func runNAV(args []string) error {
	fs := flag.NewFlagSet(navCommand, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "Path to the portfoliod config file")
	vault := fs.String("vault", "", "Vault name")
	limit := fs.Int("limit", 20, "Maximum number of snapshots")
	fs.Parse(args)
	if *vault == "" {
		return fmt.Errorf("-vault is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	nav, err := navstore.Open(cfg.ResolvePath(cfg.Keeper.NAVPath))
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, nav)
	if err != nil {
		return err
	}
	defer rt.Close()
	v, err := rt.Vault(*vault)
	if err != nil {
		return err
	}
	history, err := rt.NAVHistory(context.Background(), *vault, *limit)
	if err != nil {
		return err
	}
	for _, snap := range history {
		fmt.Fprintf(os.Stdout, "%d\t%s\t%s\t%s\n", snap.TakenAt,
			portfoliod.Units(snap.TotalAssets, v.Decimals),
			portfoliod.Units(snap.TotalSupply, v.Shares),
			portfoliod.Units(snap.SharePrice, v.Decimals))
	}
	return nil
}

func openRuntime(cfg *config.Config, nav *navstore.Store) (*portfoliod.Runtime, error) {
	logger := logging.Setup("portfolioctl", cfg.Log.Env, logging.Options{Level: "warn"})
	return portfoliod.New(cfg, portfoliod.Options{Logger: logger, NAV: nav})
}

func render(w io.Writer, format string, reports []portfoliod.Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(reports)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
