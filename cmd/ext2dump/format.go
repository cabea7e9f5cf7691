/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vorteil/ext2go/pkg/ext2"
)

var flagFormatSize int64

var formatCmd = &cobra.Command{
	Use:   "format IMAGE",
	Short: "Create and format a new ext2-compatible disk image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagFormatSize <= 0 {
			return fmt.Errorf("--size must be positive")
		}

		path := args[0]
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()

		if err := f.Truncate(flagFormatSize); err != nil {
			return fmt.Errorf("sizing %s: %w", path, err)
		}

		sectors := flagFormatSize / ext2.SectorSize
		dev := ext2.NewFileDevice(path, f, sectors)

		totalBlocks := uint32(flagFormatSize / 1024)
		if _, err := ext2.Format(dev, ext2.FormatParams{TotalBlocks: totalBlocks}, log); err != nil {
			return fmt.Errorf("formatting %s: %w", path, err)
		}
		return nil
	},
}

func init() {
	formatCmd.Flags().Int64Var(&flagFormatSize, "size", 16*1024*1024, "image size in bytes")
}
