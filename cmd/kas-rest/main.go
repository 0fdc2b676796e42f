/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kas-rest (Key Access Service REST Server).
//
//
// Terms Of Service:
//
//
//     Schemes: https
//     Version: 1.5.0
//     License: SPDX-License-Identifier: Apache-2.0
//
//     Consumes:
//     - application/json
//
//     Produces:
//     - application/json
//
// swagger:meta
package main

import (
	"github.com/spf13/cobra"

	"github.com/trustdataformat/kas-go/cmd/kas-rest/startcmd"
	"github.com/trustdataformat/kas-go/pkg/common/log"
)

// This is an application which starts the key access service API on given port.
func main() {
	rootCmd := &cobra.Command{
		Use: "kas-rest",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("kas/kas-rest")

	startCmd, err := startcmd.Cmd(&startcmd.HTTPServer{})
	if err != nil {
		logger.Fatalf(err.Error())
	}

	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run kas-rest: %s", err)
	}
}
