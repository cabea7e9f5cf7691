/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"fmt"
	"os"

	"github.com/vorteil/ext2go/pkg/ext2"
)

// openDevice wraps an on-disk image file as a BlockDevice, sized from the
// file's actual length.
func openDevice(path string, writable bool) (*ext2.FileDevice, *os.File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	sectors := info.Size() / ext2.SectorSize
	return ext2.NewFileDevice(path, f, sectors), f, nil
}

func mountReadOnly(path string) (*ext2.Filesystem, func(), error) {
	dev, f, err := openDevice(path, false)
	if err != nil {
		return nil, nil, err
	}
	fs, err := ext2.Mount(dev, log)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return fs, func() { f.Close() }, nil
}
