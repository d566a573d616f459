package main

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newCallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <pid|self|parent> <address> <value[:size]> [value[:size]]",
		Short: "Call a function inside a process with one or two parameters",
		Long: `Call a function inside a process on a new thread and print the thread's exit code.

With one parameter the function receives a pointer to a copy of it. With two
parameters the function receives both values in its first two argument slots.
Values are integers (0x prefix for hex) of 1, 2, 4 or 8 bytes, 4 when no size
is given.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			fn, err := parseAddress(args[1])
			if err != nil {
				return err
			}

			var params [][]byte
			for _, arg := range args[2:] {
				param, err := parseParam(arg)
				if err != nil {
					return err
				}
				params = append(params, param)
			}

			proc, _, err := flags.open(cmd, pid)
			if err != nil {
				return err
			}
			defer proc.Close()

			code, err := proc.RemoteCall(fn, params...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d (%#x)\n", code, code)
			return nil
		},
	}
}

// parseParam encodes "value[:size]" little-endian in size bytes
func parseParam(s string) ([]byte, error) {
	value, sizeText, hasSize := strings.Cut(s, ":")
	size := 4
	if hasSize {
		n, err := strconv.Atoi(sizeText)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter size in %q", s)
		}
		size = n
	}

	switch size {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("invalid parameter size %d in %q", size, s)
	}

	v, err := strconv.ParseUint(value, 0, size*8)
	if err != nil {
		return nil, fmt.Errorf("invalid parameter value in %q: %w", s, err)
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf[:size], nil
}
