// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/dtn7/dtn7-core/bundle"
)

// showBundle for the "show" CLI option.
func showBundle(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	var (
		input = args[0]

		err error
		f   io.ReadCloser
		raw []byte
	)

	if input == "-" {
		f = os.Stdin
	} else if f, err = os.Open(input); err != nil {
		printFatal(err, "Opening file for reading errored")
	}

	if raw, err = ioutil.ReadAll(f); err != nil {
		printFatal(err, "Reading Bundle errored")
	}
	if err = f.Close(); err != nil {
		printFatal(err, "Closing file errored")
	}

	b, err := bundle.FromBytes(raw)
	if err != nil {
		printFatal(err, "Decoding Bundle errored")
	}

	out, err := json.MarshalIndent(&b, "", "  ")
	if err != nil {
		printFatal(err, "Marshaling JSON errored")
	}
	fmt.Println(string(out))
}
