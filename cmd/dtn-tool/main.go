// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"time"
)

// nowUnix is the DTN creation timestamp source for "create": seconds since
// the Unix epoch, same resolution the rest of the node uses.
func nowUnix() int64 {
	return time.Now().Unix()
}

// printUsage of dtn-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s create|show|backup|restore:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s create sender receiver -|filename [-|filename]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Creates a new Bundle, addressed from sender to receiver with the stdin (-)\n")
	_, _ = fmt.Fprintf(os.Stderr, "  or the given file (filename) as payload. If no further specified, the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Bundle is saved to a file named after its bundle number (<number>.b).\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Otherwise it is written to stdout (-) or saved to the given filename.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s show -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints a JSON version of a Bundle, read from stdin (-) or filename.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s backup storage-dir archive.tar.xz\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Archives a storage directory's slot files into an xz-compressed tarball,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  for offline inspection or transfer. The directory must not be open by a\n")
	_, _ = fmt.Fprintf(os.Stderr, "  running node at the same time.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s restore archive.tar.xz storage-dir\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Extracts a backup created by \"backup\" into storage-dir, which must not\n")
	_, _ = fmt.Fprintf(os.Stderr, "  already exist.\n\n")

	os.Exit(1)
}

// printFatal of an error with a short context description and exits afterwards.
func printFatal(err error, msg string) {
	_, _ = fmt.Fprintf(os.Stderr, "%s errored: %s\n  %v\n", os.Args[0], msg, err)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "create":
		createBundle(os.Args[2:])

	case "show":
		showBundle(os.Args[2:])

	case "backup":
		backupStorage(os.Args[2:])

	case "restore":
		restoreStorage(os.Args[2:])

	default:
		printUsage()
	}
}
