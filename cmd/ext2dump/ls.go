/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"github.com/spf13/cobra"

	"github.com/vorteil/ext2go/pkg/ext2"
)

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List a directory's contents",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) > 1 {
			path = args[1]
		}

		fs, closeFn, err := mountReadOnly(args[0])
		if err != nil {
			return err
		}
		defer closeFn()

		entries, err := fs.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			kind := "-"
			if e.FileType == ext2.FileTypeDir {
				kind = "d"
			}
			log.Printf("%s %s", kind, e.Name)
		}
		return nil
	},
}
