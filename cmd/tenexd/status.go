// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tenex-chat/tenex/pkg/execqueue"
)

// StatusCmd queries a running daemon's debug HTTP API for the global
// Execution Queue snapshot.
type StatusCmd struct {
	Addr           string `help:"Daemon debug API address." default:"localhost:8090"`
	ConversationID string `help:"Report only this conversation's lock status." optional:""`
}

func (c *StatusCmd) Run() error {
	client := &http.Client{Timeout: 10 * time.Second}

	if c.ConversationID != "" {
		fullID, err := resolveConversationID(client, c.Addr, c.ConversationID)
		if err != nil {
			return err
		}

		var status execqueue.Status
		if err := getJSON(client, c.Addr, "/status/queue/"+fullID, &status); err != nil {
			return err
		}
		fmt.Printf("conversation:  %s\n", status.ConversationID)
		fmt.Printf("locked:        %v\n", status.Locked)
		if status.Locked {
			fmt.Printf("locked by:     %s\n", status.LockedBy)
		}
		fmt.Printf("queue length:  %d\n", status.QueueLength)
		return nil
	}

	var full execqueue.FullStatus
	if err := getJSON(client, c.Addr, "/status/queue", &full); err != nil {
		return err
	}
	fmt.Printf("active locks: %d\n", len(full.Locks))
	for _, l := range full.Locks {
		fmt.Printf("  %s  held by %s since %s\n", l.ConversationID, l.AgentPubkey, l.AcquiredAt.Format(time.RFC3339))
	}
	fmt.Printf("queue depth by conversation:\n")
	for id, depth := range full.QueueDepth {
		fmt.Printf("  %s: %d\n", id, depth)
	}
	return nil
}

// fullIDLen matches nostr.IsValidFullID's 64-char hex event id length.
const fullIDLen = 64

// resolveConversationID passes id through unchanged if it already looks
// like a full event id, otherwise resolves it as a short-id prefix
// against the daemon's registry, which disambiguates ties via
// registry.MostRecentlyTouched.
func resolveConversationID(client *http.Client, addr, id string) (string, error) {
	if len(id) == fullIDLen {
		return id, nil
	}

	var resp struct {
		Matches  []string `json:"matches"`
		Resolved string   `json:"resolved"`
	}
	if err := getJSON(client, addr, "/status/registry/"+id, &resp); err != nil {
		return "", err
	}
	if resp.Resolved == "" {
		return "", fmt.Errorf("no conversation matches short id %q", id)
	}
	if len(resp.Matches) > 1 {
		fmt.Printf("short id %q is ambiguous (%d matches); using most recently touched: %s\n", id, len(resp.Matches), resp.Resolved)
	}
	return resp.Resolved, nil
}

func getJSON(client *http.Client, addr, path string, out any) error {
	url := "http://" + addr + path
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
