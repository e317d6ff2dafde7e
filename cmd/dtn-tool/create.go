// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/dtn7/dtn7-core/bundle"
)

// parseEndpointID parses the "dtn://node.service" form used throughout this
// tool's command line arguments.
func parseEndpointID(s string) (bundle.EndpointID, error) {
	var e bundle.EndpointID
	if _, err := fmt.Sscanf(s, "dtn://%d.%d", &e.Node, &e.Service); err != nil {
		return bundle.EndpointID{}, fmt.Errorf("expected dtn://node.service, got %q: %w", s, err)
	}
	return e, nil
}

// createBundle for the "create" CLI option.
func createBundle(args []string) {
	if len(args) != 3 && len(args) != 4 {
		printUsage()
	}

	var (
		senderArg   = args[0]
		receiverArg = args[1]
		dataInput   = args[2]

		err  error
		data []byte
	)

	sender, err := parseEndpointID(senderArg)
	if err != nil {
		printFatal(err, "Parsing sender errored")
	}
	receiver, err := parseEndpointID(receiverArg)
	if err != nil {
		printFatal(err, "Parsing receiver errored")
	}

	if dataInput == "-" {
		data, err = ioutil.ReadAll(os.Stdin)
	} else {
		data, err = ioutil.ReadFile(dataInput)
	}
	if err != nil {
		printFatal(err, "Reading input errored")
	}

	b := bundle.New(0, receiver, sender, uint32(nowUnix()), 0, 24*3600)
	b.AddBlock(bundle.NewBlock(bundle.PayloadBlockType, 0, data))

	encoded, err := b.ToBytes()
	if err != nil {
		printFatal(err, "Encoding Bundle errored")
	}

	outName := "-"
	if len(args) == 4 {
		outName = args[3]
	} else {
		outName = fmt.Sprintf("%d.b", uint32(b.ID()))
	}

	var f io.WriteCloser
	if outName == "-" {
		f = os.Stdout
	} else if f, err = os.Create(outName); err != nil {
		printFatal(err, "Creating file errored")
	}

	if _, err = f.Write(encoded); err != nil {
		printFatal(err, "Writing Bundle errored")
	}
	if f != os.Stdout {
		if err = f.Close(); err != nil {
			printFatal(err, "Closing file errored")
		}
	}
}
