/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vorteil/ext2go/pkg/elog"
)

var log elog.Logger = &elog.Discard{}

var (
	flagVerbose bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "ext2dump",
	Short: "Format, inspect and read ext2-compatible disk images",
	Long: `ext2dump formats new ext2-compatible disk images, and mounts existing
ones read-only to print superblock/block-group summaries, directory
listings, and file contents without needing the image mounted by the host
kernel.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cli := &elog.CLI{IsDebug: flagDebug, IsVerbose: flagVerbose}
		logrus.SetFormatter(cli)
		logrus.SetLevel(logrus.TraceLevel)
		log = cli
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(formatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
