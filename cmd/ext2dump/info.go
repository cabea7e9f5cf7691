/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info IMAGE",
	Short: "Print superblock and block-group summaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, closeFn, err := mountReadOnly(args[0])
		if err != nil {
			return err
		}
		defer closeFn()

		sb := fs.Superblock()
		log.Printf("block size:      %d", sb.BlockSize())
		log.Printf("total blocks:    %d", sb.TotalBlocks)
		log.Printf("free blocks:     %d", sb.FreeBlocks)
		log.Printf("total inodes:    %d", sb.TotalInodes)
		log.Printf("free inodes:     %d", sb.FreeInodes)
		log.Printf("blocks/group:    %d", sb.BlocksPerGroup)
		log.Printf("inodes/group:    %d", sb.InodesPerGroup)
		log.Printf("groups:          %d", sb.Groups())

		for i, g := range fs.Groups() {
			log.Printf("group %d: block bitmap=%d inode bitmap=%d inode table=%d free blocks=%d free inodes=%d",
				i, g.BlockBitmap, g.InodeBitmap, g.InodeTable, g.FreeBlocks, g.FreeInodes)
		}
		return nil
	},
}
