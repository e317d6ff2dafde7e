// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// restoreStorage for the "restore" CLI option: the inverse of backupStorage.
// Refuses to overwrite an existing directory so a restore never silently
// clobbers a live node's storage.
func restoreStorage(args []string) {
	if len(args) != 2 {
		printUsage()
	}
	archivePath, storageDir := args[0], args[1]

	if _, err := os.Stat(storageDir); err == nil {
		printFatal(errors.New("destination already exists"), "Restoring archive errored")
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		printFatal(err, "Creating destination directory errored")
	}

	in, err := os.Open(archivePath)
	if err != nil {
		printFatal(err, "Opening archive file errored")
	}
	defer in.Close()

	xzReader, err := xz.NewReader(in)
	if err != nil {
		printFatal(err, "Initializing xz reader errored")
	}

	tarReader := tar.NewReader(xzReader)

	for {
		hdr, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			printFatal(err, "Reading archive entry errored")
		}

		dest := filepath.Join(storageDir, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			printFatal(err, "Creating parent directory errored")
		}

		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			printFatal(err, "Creating restored file errored")
		}
		if _, err = io.Copy(f, tarReader); err != nil {
			_ = f.Close()
			printFatal(err, "Writing restored file errored")
		}
		if err = f.Close(); err != nil {
			printFatal(err, "Closing restored file errored")
		}
	}
}
