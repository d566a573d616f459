package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"goinject/call_stub"
	"goinject/process"

	"github.com/spf13/cobra"
)

func newStubCmd() *cobra.Command {
	var (
		arch  string
		sizes string
		base  string
	)

	cmd := &cobra.Command{
		Use:   "stub <callee>",
		Short: "Generate and disassemble the two-parameter call stub for a callee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callee, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			a, err := parseArch(arch)
			if err != nil {
				return err
			}
			size1, size2, err := parseSizes(sizes)
			if err != nil {
				return err
			}
			at, err := parseAddress(base)
			if err != nil {
				return err
			}

			layout, err := call_stub.NewLayout(size1, size2)
			if err != nil {
				return err
			}
			stub, err := call_stub.Generate(a, layout, callee)
			if err != nil {
				return err
			}
			lines, err := call_stub.Disassemble(stub, uint64(at))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "; %s stub, parameters at +%d (%d bytes) and +%d (%d bytes)\n",
				a, layout.Offsets[0], layout.Sizes[0], layout.Offsets[1], layout.Sizes[1])
			fmt.Fprintf(out, "; %s\n", hex.EncodeToString(stub.Code))
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "%#08x  literal %s\n", uint64(at)+uint64(stub.LiteralOffset), stub.Callee().ToString())
			return nil
		},
	}

	cmd.Flags().StringVar(&arch, "arch", process.CallerArch().String(), "x86 or x64")
	cmd.Flags().StringVar(&sizes, "sizes", "4,4", "byte sizes of the two parameters")
	cmd.Flags().StringVar(&base, "base", "0", "address to disassemble the stub at")
	return cmd
}

func parseArch(s string) (process.Arch, error) {
	switch strings.ToLower(s) {
	case "x86", "386", "i386":
		return process.ArchX86, nil
	case "x64", "amd64", "x86_64":
		return process.ArchX64, nil
	default:
		return process.ArchUnknown, fmt.Errorf("unsupported arch %q", s)
	}
}

func parseSizes(s string) (int, int, error) {
	first, second, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("sizes must be two comma separated integers, got %q", s)
	}
	size1, err1 := strconv.Atoi(strings.TrimSpace(first))
	size2, err2 := strconv.Atoi(strings.TrimSpace(second))
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("sizes must be two comma separated integers, got %q", s)
	}
	return size1, size2, nil
}
