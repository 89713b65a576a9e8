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
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tenex-chat/tenex/pkg/persistence"
)

// SearchCmd queries a running daemon's debug HTTP API for conversations
// matching the given criteria.
type SearchCmd struct {
	Addr     string `help:"Daemon debug API address." default:"localhost:8090"`
	Title    string `help:"Substring to match against conversation titles."`
	Phase    string `help:"Restrict to conversations in this phase."`
	Archived bool   `help:"List only archived conversations; without it (or with --no-archived) active and archived conversations are both listed." negatable:""`
}

func (c *SearchCmd) Run() error {
	client := &http.Client{Timeout: 10 * time.Second}

	q := url.Values{}
	if c.Title != "" {
		q.Set("title", c.Title)
	}
	if c.Phase != "" {
		q.Set("phase", c.Phase)
	}
	if c.Archived {
		q.Set("archived", "true")
	}

	path := "/status/conversations/search"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var results []persistence.Metadata
	if err := getJSON(client, c.Addr, path, &results); err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no matching conversations")
		return nil
	}
	for _, m := range results {
		fmt.Printf("%s  phase=%-12s events=%-4d agents=%-3d archived=%v  %q\n",
			m.ID, m.Phase, m.EventCount, m.AgentCount, m.Archived, m.Title)
	}
	return nil
}
