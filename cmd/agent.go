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
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/clearmesh/clearmesh-agent/pkg/broker"
	"github.com/clearmesh/clearmesh-agent/pkg/broker/mqtt"
	"github.com/clearmesh/clearmesh-agent/pkg/broker/session"
	"github.com/clearmesh/clearmesh-agent/pkg/server"
)

var defaultAddr = "unix://" + filepath.Join(os.TempDir(), "clearmesh-agent.sock")

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agent.",
	Run: func(cmd *cobra.Command, args []string) {
		agentID := viper.GetString("agent_id")
		factoryOpts := []mqtt.Option{mqtt.WithLogger(logger)}
		if agentID != "" {
			factoryOpts = append(factoryOpts, mqtt.WithClientID(agentID))
		}
		factory, err := mqtt.NewFactory(factoryOpts...)
		if err != nil {
			logger.Fatal("failed to create session factory", zap.Error(err))
		}

		cfg := broker.Config{
			URL:      viper.GetString("broker_url"),
			VPN:      viper.GetString("vpn"),
			Username: viper.GetString("username"),
			Password: viper.GetString("password"),
		}
		mgr, err := session.NewManager(
			session.WithSessionFactory(factory),
			session.WithConfig(cfg),
			session.WithLogger(logger),
			session.WithInactivityTimeout(viper.GetDuration("inactivity_timeout")),
			session.WithIgnorePatterns(viper.GetStringSlice("ignore_topics")...),
		)
		if err != nil {
			logger.Fatal("failed to create session manager", zap.Error(err))
		}

		subscribeTopics := viper.GetStringSlice("subscribe_topics")
		if len(subscribeTopics) == 0 {
			subscribeTopics = []string{"agent/default"}
			if agentID != "" {
				subscribeTopics = append(subscribeTopics, "agent/"+agentID)
			}
		}

		logger.Debug("Listening address: " + addr)
		s, err := server.New(
			server.WithAddr(addr),
			server.WithManager(mgr),
			server.WithSubscribeTopics(subscribeTopics...),
			server.WithHeartbeat(viper.GetString("heartbeat_topic"), viper.GetString("heartbeat_schedule")),
			server.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("failed to create new server", zap.Error(err))
		}
		if err := s.Run(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "listening address of server.")
}
