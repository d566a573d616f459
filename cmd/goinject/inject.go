package main

import (
	"fmt"
	"os"
	"path/filepath"

	"goinject/process"

	"github.com/spf13/cobra"
)

type injectFlags struct {
	pid      string
	entry    string
	entryArg uint32
	noPause  bool
}

func newInjectCmd(flags *globalFlags) *cobra.Command {
	f := &injectFlags{}

	cmd := &cobra.Command{
		Use:   "inject [module]",
		Short: "Load a module into a process and optionally call one of its exports",
		Long: `Load a module into a process and optionally call one of its exports.

By default the target is the process that started goinject. Its threads are
paused while the module loads and the entry point runs, then resumed. The entry
point receives a pointer to a copy of --arg. The module path and entry point
fall back to the "module" and "entry" configuration keys.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(cmd, flags, f, firstArg(args))
		},
	}

	cmd.Flags().StringVar(&f.pid, "pid", "parent", "target pid, self or parent")
	cmd.Flags().StringVar(&f.entry, "entry", "", "exported function to call after loading")
	cmd.Flags().Uint32Var(&f.entryArg, "arg", 0, "value passed to the entry point")
	cmd.Flags().BoolVar(&f.noPause, "no-pause", false, "leave the target running while injecting")
	return cmd
}

func runInject(cmd *cobra.Command, flags *globalFlags, f *injectFlags, module string) error {
	pid, err := parsePID(f.pid)
	if err != nil {
		return err
	}
	proc, cfg, err := flags.open(cmd, pid)
	if err != nil {
		return err
	}
	defer proc.Close()

	if module == "" {
		module = cfg.Module
	}
	if module == "" {
		return fmt.Errorf("no module given and none configured")
	}
	// the target resolves relative names against its own directory, not ours
	if _, err := os.Stat(module); err == nil {
		if abs, err := filepath.Abs(module); err == nil {
			module = abs
		}
	}

	entry := f.entry
	entryArg := f.entryArg
	if !cmd.Flags().Changed("entry") {
		entry = cfg.Entry
	}
	if !cmd.Flags().Changed("arg") {
		entryArg = cfg.EntryArg
	}

	if !f.noPause {
		proc.Pause()
		defer proc.Unpause()
	}

	base, err := proc.InjectModule(module)
	if err != nil {
		return fmt.Errorf("injecting %s into %d: %w", module, proc.GetPID(), err)
	}
	log.Infoln("Loaded", module, "into", proc.GetPID())
	fmt.Fprintf(cmd.OutOrStdout(), "%s loaded at %s\n", module, base.ToString())

	if entry == "" {
		return nil
	}

	fn, err := resolveRemoteProc(base, module, entry)
	if err != nil {
		return err
	}
	code, err := process.Call1(proc, fn, entryArg)
	if err != nil {
		return fmt.Errorf("calling %s at %s: %w", entry, fn.ToString(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s at %s returned %d\n", entry, fn.ToString(), code)
	return nil
}
