// This file is part of clearmesh-agent
//
// Copyright (C) 2026  ClearMesh
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clearmesh/clearmesh-agent/pkg/server"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the running agent's session status.",
	Run: func(cmd *cobra.Command, args []string) {
		resp := doRequest(http.MethodGet, "/status", nil)
		exitOnFailure(resp)
		defer resp.Body.Close()

		var status server.StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		fmt.Println("Connected:     ", status.Connected)
		fmt.Println("Broker URL:    ", status.BrokerURL)
		if status.VPN != "" {
			fmt.Println("VPN:           ", status.VPN)
		}
		fmt.Println("Uptime:        ", status.Uptime)
		fmt.Println("Subscriptions: ", strings.Join(status.Subscriptions, ", "))
		fmt.Println("Received:      ", status.Stats.Received)
		fmt.Println("Delivered:     ", status.Stats.Delivered)
		fmt.Println("Ignored:       ", status.Stats.Ignored)
		fmt.Println("Published:     ", status.Stats.Published)
		fmt.Println("Bytes in:      ", status.BytesInHuman)
		fmt.Println("Bytes out:     ", status.BytesOutHuman)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
