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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenex-chat/tenex/pkg/config"
	"github.com/tenex-chat/tenex/pkg/engine"
	"github.com/tenex-chat/tenex/pkg/messagebuilder"
	"github.com/tenex-chat/tenex/pkg/nostr"
)

const defaultConfigPath = "tenex.yaml"

// ServeCmd starts the conversation engine daemon.
type ServeCmd struct {
	ListenAddr string `name:"listen" help:"Override http_api.listen_addr from the config file."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	configPath := cli.Config
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.LoadConfig(config.LoaderOptions{Type: config.ConfigTypeFile, Path: configPath})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.ListenAddr != "" {
		cfg.HTTPAPI.ListenAddr = c.ListenAddr
	}

	// RelayClient, Signer, and ModelProvider are external collaborators
	// this module never implements (spec.md §1's non-goal): transport,
	// signing, and LLM inference are supplied by the process embedding
	// tenexd. Standalone tenexd has none of those wired in, so it runs
	// with stand-ins that keep the debug/status surface and persisted
	// conversations reachable without accepting new relay traffic.
	eng, err := engine.New(ctx, cfg, &unconfiguredSigner{}, &unconfiguredRelay{}, &unconfiguredModelProvider{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if cfg.HTTPAPI.ListenAddr != "" {
		slog.Info("debug http api listening", "addr", cfg.HTTPAPI.ListenAddr)
	} else {
		slog.Warn("http_api.listen_addr is unset; debug/status surface disabled")
	}
	slog.Info("tenexd ready; no relay subscription wired, run as a library to ingest events")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return eng.Shutdown(shutdownCtx)
}

const shutdownTimeout = 10 * time.Second

var errUnconfigured = errors.New("tenexd: no relay/signer configured for standalone serve")

type unconfiguredSigner struct{}

func (unconfiguredSigner) Pubkey(ctx context.Context) (string, error) { return "", errUnconfigured }

func (unconfiguredSigner) Sign(ctx context.Context, ev *nostr.Event) error { return errUnconfigured }

type unconfiguredRelay struct{}

func (unconfiguredRelay) Publish(ctx context.Context, ev *nostr.Event) error { return errUnconfigured }

func (unconfiguredRelay) FetchByID(ctx context.Context, id string) (*nostr.Event, error) {
	return nil, nil
}

func (unconfiguredRelay) FetchAddressable(ctx context.Context, ref nostr.AddressableRef) (*nostr.Event, error) {
	return nil, nil
}

type unconfiguredModelProvider struct{}

func (unconfiguredModelProvider) Complete(ctx context.Context, messages []messagebuilder.Message) (engine.ModelResponse, error) {
	return engine.ModelResponse{}, errUnconfigured
}
