package main

import (
	"fmt"
	"io"
	"strings"

	"goinject/process"

	"github.com/spf13/cobra"
)

func newInfoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info [pid|self|parent]",
		Short: "Show image path, bitness and parent of a process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(firstArg(args))
			if err != nil {
				return err
			}
			proc, _, err := flags.open(cmd, pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pid:    %d\n", proc.GetPID())
			fmt.Fprintf(out, "ppid:   %d\n", proc.GetParentPID())
			fmt.Fprintf(out, "arch:   %s (caller %s)\n", proc.GetArch(), process.CallerArch())
			if name, err := proc.GetFileName(); err == nil {
				fmt.Fprintf(out, "image:  %s\n", name)
			} else {
				fmt.Fprintf(out, "image:  <%v>\n", err)
			}
			return nil
		},
	}
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps [name]",
		Short: "List processes, optionally only those with the given image name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			finder := newFinder()

			var (
				procs []process.ProcessInfo
				err   error
			)
			if len(args) == 1 {
				procs, err = finder.FindProcessByName(args[0])
			} else {
				procs, err = finder.FindAllProcesses()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%8s %8s %7s  %s\n", "PID", "PPID", "THREADS", "NAME")
			for _, p := range procs {
				fmt.Fprintf(out, "%8d %8d %7d  %s\n", p.PID, p.PPID, p.Threads, p.Name)
			}
			return nil
		},
	}
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [pid|self|parent]",
		Short: "Print the process tree below a process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(firstArg(args))
			if err != nil {
				return err
			}
			tree, err := newFinder().GetProcessTree(pid)
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), tree, 0)
			return nil
		},
	}
}

func printTree(w io.Writer, node *process.ProcessTreeNode, depth int) {
	fmt.Fprintf(w, "%s%d %s\n", strings.Repeat("  ", depth), node.Process.PID, node.Process.Name)
	for _, child := range node.Children {
		printTree(w, child, depth+1)
	}
}

func newMapsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "maps <pid|self|parent>",
		Short: "Print the committed memory regions of a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			proc, _, err := flags.open(cmd, pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			mm, err := proc.GetMemoryMap()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range mm {
				fmt.Fprintf(out, "%016x-%016x %s\n", item.Address, item.End(), item.Perms)
			}
			return nil
		},
	}
}

func newPauseCmd(flags *globalFlags, pause bool) *cobra.Command {
	use, short := "pause", "Suspend every thread of a process"
	if !pause {
		use, short = "resume", "Resume every thread of a process once"
	}
	return &cobra.Command{
		Use:   use + " <pid|parent>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			proc, _, err := flags.open(cmd, pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			if pause {
				proc.Pause()
			} else {
				proc.Unpause()
			}
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
