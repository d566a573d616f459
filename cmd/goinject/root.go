package main

import (
	"fmt"
	"strconv"
	"time"

	"goinject/config"
	"goinject/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/cobra"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "goinject"))

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath          string
	waitTimeout         time.Duration
	skipSharedBaseCheck bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "goinject",
		Short: "Inspect processes, inject modules and run remote calls",
		Long: `goinject opens a process by pid and can:
  - report its image path, bitness and parent
  - list its memory map
  - pause and resume all of its threads
  - load a module into it and call an exported entry point
  - call a function already loaded in it with one or two parameters`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	pf.DurationVar(&flags.waitTimeout, "timeout", 0, "bound on every remote thread (default from config)")
	pf.BoolVar(&flags.skipSharedBaseCheck, "skip-shared-base-check", false, "do not verify kernel32 sits at the same base in the target")

	root.AddCommand(
		newInfoCmd(flags),
		newPsCmd(),
		newTreeCmd(),
		newMapsCmd(flags),
		newPauseCmd(flags, true),
		newPauseCmd(flags, false),
		newInjectCmd(flags),
		newCallCmd(flags),
		newStubCmd(),
	)
	return root
}

// loadConfig merges the config file, environment and command line flags
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("timeout") {
		cfg.WaitTimeout = f.waitTimeout.String()
	}
	if cmd.Flags().Changed("skip-shared-base-check") {
		cfg.SkipSharedBaseCheck = f.skipSharedBaseCheck
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open loads the configuration and opens pid with it
func (f *globalFlags) open(cmd *cobra.Command, pid process.ProcessID) (process.Process, *config.Config, error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	proc, err := openProcess(pid, cfg.Options()...)
	if err != nil {
		return nil, nil, err
	}
	return proc, cfg, nil
}

// parsePID accepts a decimal pid, "self" for the calling process or "parent" for its parent
func parsePID(s string) (process.ProcessID, error) {
	switch s {
	case "", "self":
		return process.CurrentProcess, nil
	case "parent":
		return parentPID()
	}
	pid, err := strconv.Atoi(s)
	if err != nil || pid < 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return process.ProcessID(pid), nil
}

// parentPID returns the process that started goinject, usually the shell it runs in
func parentPID() (process.ProcessID, error) {
	self, err := openProcess(process.CurrentProcess)
	if err != nil {
		return 0, err
	}
	defer self.Close()

	ppid := self.GetParentPID()
	if ppid == process.InvalidProcessID {
		return 0, fmt.Errorf("%w: parent of %d has exited", process.ErrNotFound, self.GetPID())
	}
	return ppid, nil
}

func parseAddress(s string) (process.ProcessMemoryAddress, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}
