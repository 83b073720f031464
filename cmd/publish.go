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
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
	"github.com/clearmesh/clearmesh-agent/pkg/server"
)

var (
	publishToQueue     bool
	publishBinary      bool
	publishTTL         int64
	publishPriority    int
	publishReplyTo     string
	publishCorrelation string
	publishPersistent  bool
	publishDMQEligible bool
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish DESTINATION CONTENT",
	Short: "Publish a message through the running agent.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		opts := &broker.PublishOptions{}
		if publishToQueue {
			opts.DestinationType = broker.DestinationQueue
		}
		if publishBinary {
			opts.MessageType = broker.MessageTypeBinary
		}
		if cmd.Flags().Changed("ttl") {
			opts.TimeToLive = &publishTTL
		}
		if cmd.Flags().Changed("priority") {
			opts.Priority = &publishPriority
		}
		if publishReplyTo != "" {
			opts.ReplyToTopic = &publishReplyTo
		}
		if publishCorrelation != "" {
			opts.CorrelationID = &publishCorrelation
		}
		if publishPersistent {
			mode := broker.DeliveryModePersistent
			opts.DeliveryMode = &mode
		}
		if cmd.Flags().Changed("dmq-eligible") {
			opts.DMQEligible = &publishDMQEligible
		}

		resp := doRequest(http.MethodPost, "/messages", server.PublishRequest{
			Destination: args[0],
			Content:     args[1],
			Options:     opts,
		})
		exitOnFailure(resp)
		resp.Body.Close()
		fmt.Println("published to", args[0])
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().BoolVar(&publishToQueue, "queue", false, "publish to a queue instead of a topic.")
	publishCmd.Flags().BoolVar(&publishBinary, "binary", false, "send content as a structured binary message.")
	publishCmd.Flags().Int64Var(&publishTTL, "ttl", 0, "time to live in seconds.")
	publishCmd.Flags().IntVar(&publishPriority, "priority", 0, "message priority.")
	publishCmd.Flags().StringVar(&publishReplyTo, "reply-to", "", "reply-to topic.")
	publishCmd.Flags().StringVar(&publishCorrelation, "correlation-id", "", "correlation id.")
	publishCmd.Flags().BoolVar(&publishPersistent, "persistent", false, "use persistent delivery mode.")
	publishCmd.Flags().BoolVar(&publishDMQEligible, "dmq-eligible", false, "mark the message dead-message-queue eligible.")
}
