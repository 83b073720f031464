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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"strings"
)

// agentClient talks to the running agent's control server over either the
// unix socket or TCP, depending on the configured addr.
func agentClient() (*http.Client, string) {
	if strings.HasPrefix(addr, unixPrefix) {
		sock := strings.TrimPrefix(addr, unixPrefix)
		httpc := &http.Client{
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", sock)
				},
			},
		}
		return httpc, "http://unix"
	}

	httpc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial(tcpProtocol, strings.TrimPrefix(addr, httpPrefix))
			},
		},
	}
	return httpc, strings.TrimSuffix(addr, "/")
}

// doRequest performs one control-API call and exits on transport errors.
func doRequest(method, path string, body interface{}) *http.Response {
	httpc, base := agentClient()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpc.Do(req)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	return resp
}

// exitOnFailure reports a non-2xx control-API response and exits.
func exitOnFailure(resp *http.Response) {
	if resp.StatusCode < http.StatusMultipleChoices {
		return
	}
	defer resp.Body.Close()
	msg, _ := ioutil.ReadAll(resp.Body)
	fmt.Fprintf(os.Stderr, "agent returned %s: %s\n", resp.Status, strings.TrimSpace(string(msg)))
	os.Exit(1)
}
