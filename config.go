/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package nerv

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tomoncle/nerv/database"
	"github.com/tomoncle/nerv/datacontext"
)

// ContextConfig configures one persistence context.
type ContextConfig struct {
	Connection       *database.ConnectionConfig `json:"connection" yaml:"connection"`
	Options          datacontext.Options        `json:"options" yaml:"options"`
	MigrateOnStartup bool                       `json:"migrate_on_startup" yaml:"migrate_on_startup"`
}

// Config is the registry configuration: one entry per context name.
//
//	contexts:
//	  blog:
//	    connection:
//	      type: postgres
//	      host: localhost
//	      dbname: blog
//	    options:
//	      use_pluralization: true
//	    migrate_on_startup: true
type Config struct {
	Contexts map[string]*ContextConfig `json:"contexts" yaml:"contexts"`
}

// Names returns the configured context names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads the YAML file at path. See ParseConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML configuration. Every context starts from
// DefaultConnectionConfig and DefaultOptions, is overlaid with the YAML
// values and then with its DB_<NAME>_* environment variables.
func ParseConfig(data []byte) (*Config, error) {
	var raw struct {
		Contexts map[string]yaml.Node `yaml:"contexts"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{Contexts: make(map[string]*ContextConfig, len(raw.Contexts))}
	for name, node := range raw.Contexts {
		cc := &ContextConfig{
			Connection: database.DefaultConnectionConfig(),
			Options:    datacontext.DefaultOptions(),
		}
		if err := node.Decode(cc); err != nil {
			return nil, fmt.Errorf("failed to parse context %q: %w", name, err)
		}
		if cc.Connection == nil {
			cc.Connection = database.DefaultConnectionConfig()
		}
		if err := database.ApplyEnv(name, cc.Connection); err != nil {
			return nil, err
		}
		if cc.Connection.Type == "" {
			return nil, fmt.Errorf("context %q: connection type is required", name)
		}
		cfg.Contexts[name] = cc
	}
	return cfg, nil
}
