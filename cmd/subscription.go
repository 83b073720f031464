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

	"github.com/spf13/cobra"

	"github.com/clearmesh/clearmesh-agent/pkg/server"
)

// subscriptionCmd represents the subscription command
var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage topic subscriptions of the running agent.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			logger.Error(err.Error())
		}
	},
}

var subscriptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current topic subscriptions.",
	Run: func(cmd *cobra.Command, args []string) {
		resp := doRequest(http.MethodGet, "/subscriptions", nil)
		exitOnFailure(resp)
		defer resp.Body.Close()

		var topics []string
		if err := json.NewDecoder(resp.Body).Decode(&topics); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		for _, topic := range topics {
			fmt.Println(topic)
		}
	},
}

var subscriptionAddCmd = &cobra.Command{
	Use:   "add TOPIC",
	Short: "Subscribe to a topic.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp := doRequest(http.MethodPost, "/subscriptions", server.SubscriptionRequest{Topic: args[0]})
		exitOnFailure(resp)
		resp.Body.Close()
		fmt.Println("subscribed to", args[0])
	},
}

var subscriptionRemoveCmd = &cobra.Command{
	Use:   "remove TOPIC",
	Short: "Unsubscribe from a topic.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp := doRequest(http.MethodDelete, "/subscriptions", server.SubscriptionRequest{Topic: args[0]})
		exitOnFailure(resp)
		resp.Body.Close()
		fmt.Println("unsubscribed from", args[0])
	},
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(subscriptionListCmd)
	subscriptionCmd.AddCommand(subscriptionAddCmd)
	subscriptionCmd.AddCommand(subscriptionRemoveCmd)
}
