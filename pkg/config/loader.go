// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul/v2"
	"github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigType selects where the root document comes from. Consul and etcd
// let a fleet of tenexd instances share one config (and one project/phase
// namespace) without a separate config-distribution mechanism.
type ConfigType string

const (
	ConfigTypeFile   ConfigType = "file"
	ConfigTypeConsul ConfigType = "consul"
	ConfigTypeEtcd   ConfigType = "etcd"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type ConfigType

	// Path is the file path for ConfigTypeFile, or the key under which
	// the document is stored for ConfigTypeConsul/ConfigTypeEtcd.
	Path string

	// Endpoints addresses the remote backend; defaults to the backend's
	// conventional local address when empty.
	Endpoints []string

	// Watch starts a background goroutine that reloads on change and
	// invokes OnChange.
	Watch bool

	OnChange func(*Config) error
}

// Loader loads tenex.yaml (or its remote equivalent) through koanf and
// decodes it into a Config, mirroring the teacher's koanf-based loader:
// one provider per backend, a confmap re-load step for env-var expansion,
// then an UnmarshalWithConf keyed off the "yaml" tag.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	parser   *yaml.YAML
	stopChan chan struct{}
}

// NewLoader constructs a Loader, filling in each backend's conventional
// endpoint when none was given.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = ConfigTypeFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case ConfigTypeConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case ConfigTypeEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		}
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		parser:   yaml.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads the document, expands ${VAR} references, decodes it into a
// Config, applies defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.provider()
	if err != nil {
		return nil, err
	}

	if err := l.koanf.Load(provider, l.parserFor()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.options.Type, err)
	}
	if err := l.expandEnvVarsInKoanf(); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	cfg, err := l.unmarshalAndProcess()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}
	return cfg, nil
}

func (l *Loader) provider() (koanf.Provider, error) {
	switch l.options.Type {
	case ConfigTypeFile:
		return file.Provider(l.options.Path), nil

	case ConfigTypeConsul:
		consulConfig := api.DefaultConfig()
		consulConfig.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: consulConfig, Key: l.options.Path}), nil

	case ConfigTypeEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported config type: %s", l.options.Type)
	}
}

// parserFor reports which parser a provider's raw bytes need: file
// documents are bare YAML, while consul/etcd values are loaded as
// pre-parsed maps by their respective koanf providers.
func (l *Loader) parserFor() koanf.Parser {
	if l.options.Type == ConfigTypeFile {
		return l.parser
	}
	return nil
}

type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	w, ok := provider.(watcher)
	if !ok {
		slog.Warn("config provider does not support watching", "type", l.options.Type)
		return
	}

	slog.Info("started watching for config changes", "type", l.options.Type)

	err := w.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}
		if err != nil {
			slog.Error("config watch error", "error", err)
			return
		}

		if err := l.koanf.Load(provider, l.parserFor()); err != nil {
			slog.Error("failed to reload config", "error", err)
			return
		}
		if err := l.expandEnvVarsInKoanf(); err != nil {
			slog.Error("failed to expand env vars in reloaded config", "error", err)
			return
		}
		newCfg, err := l.unmarshalAndProcess()
		if err != nil {
			slog.Error("reloaded config processing failed", "error", err)
			return
		}

		if l.options.OnChange != nil {
			if err := l.options.OnChange(newCfg); err != nil {
				slog.Error("config change callback failed", "error", err)
				return
			}
		}
		slog.Info("configuration reloaded", "type", l.options.Type)
	})
	if err != nil {
		slog.Error("config watch stopped", "error", err)
	}
}

func (l *Loader) unmarshalAndProcess() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) expandEnvVarsInKoanf() error {
	expanded := ExpandEnvVarsInData(l.koanf.Raw())
	expandedMap, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type after env var expansion")
	}

	newKoanf := koanf.New(".")
	if err := newKoanf.Load(confmap.Provider(expandedMap, "."), nil); err != nil {
		return fmt.Errorf("failed to load expanded config: %w", err)
	}
	l.koanf = newKoanf
	return nil
}

// Stop ends a background Watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}

// SetOnChange sets the callback invoked on a successful Watch reload.
func (l *Loader) SetOnChange(callback func(*Config) error) {
	l.options.OnChange = callback
}

// LoadConfig is a one-shot convenience wrapper around NewLoader+Load.
func LoadConfig(opts LoaderOptions) (*Config, error) {
	cfg, _, err := LoadConfigWithLoader(opts)
	return cfg, err
}

// LoadConfigWithLoader is LoadConfig but also returns the Loader, needed
// to later call Stop or SetOnChange when opts.Watch is set.
func LoadConfigWithLoader(opts LoaderOptions) (*Config, *Loader, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, loader, nil
}

// ParseConfigType parses a --config-type flag value into a ConfigType.
func ParseConfigType(s string) (ConfigType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return ConfigTypeFile, nil
	case "consul":
		return ConfigTypeConsul, nil
	case "etcd":
		return ConfigTypeEtcd, nil
	default:
		return "", fmt.Errorf("invalid config type: %s (valid types: file, consul, etcd)", s)
	}
}
