/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH",
	Short: "Print a regular file's contents to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closeFn, err := mountReadOnly(args[0])
		if err != nil {
			return err
		}
		defer closeFn()

		h, err := fs.Open(args[1])
		if err != nil {
			return err
		}
		defer h.Close()

		// Handle.Read reports end of file as a zero-byte read, not io.EOF.
		buf := make([]byte, fs.BlockSize())
		for {
			n, err := h.Read(buf)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if _, err := os.Stdout.Write(buf[:n]); err != nil {
				return err
			}
		}
	},
}
