// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// backupLockSuffix names the advisory lock file FileStore keeps next to its
// index; it is process-specific and never worth archiving.
const backupLockSuffix = ".lock"

// backupStorage for the "backup" CLI option: tars every slot and index file
// in a storage directory, then xz-compresses the tarball. Meant to run
// against a directory no dtnd process currently has open.
func backupStorage(args []string) {
	if len(args) != 2 {
		printUsage()
	}
	storageDir, archivePath := args[0], args[1]

	out, err := os.Create(archivePath)
	if err != nil {
		printFatal(err, "Creating archive file errored")
	}

	xzWriter, err := xz.NewWriter(out)
	if err != nil {
		printFatal(err, "Initializing xz writer errored")
	}

	tarWriter := tar.NewWriter(xzWriter)

	walkErr := filepath.WalkDir(storageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, backupLockSuffix) {
			return nil
		}

		rel, err := filepath.Rel(storageDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tarWriter.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if walkErr != nil {
		printFatal(walkErr, "Archiving storage directory errored")
	}

	if err = tarWriter.Close(); err != nil {
		printFatal(err, "Closing tar writer errored")
	}
	if err = xzWriter.Close(); err != nil {
		printFatal(err, "Closing xz writer errored")
	}
	if err = out.Close(); err != nil {
		printFatal(err, "Closing archive file errored")
	}
}
