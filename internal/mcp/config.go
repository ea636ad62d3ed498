package mcp

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerDefinition declares one MCP server in the servers config file.
type ServerDefinition struct {
	ID      string            `yaml:"id"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

type serversFile struct {
	Servers []ServerDefinition `yaml:"servers"`
}

// LoadServerDefinitions reads server definitions from a YAML file:
//
//	servers:
//	  - id: filesystem
//	    command: npx
//	    args: ["-y", "@modelcontextprotocol/server-filesystem", "."]
//	    env: {LOG_LEVEL: debug}
func LoadServerDefinitions(path string) ([]ServerDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file serversFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := map[string]bool{}
	for i, def := range file.Servers {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("%s: server %d has no id", path, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%s: duplicate server id %q", path, id)
		}
		seen[id] = true
		if strings.TrimSpace(def.Command) == "" {
			return nil, fmt.Errorf("%s: server %q has no command", path, id)
		}
	}
	return file.Servers, nil
}

// SpawnAll starts a transport for each definition. On failure the already
// started transports are shut down.
func SpawnAll(defs []ServerDefinition) (map[string]*StdioTransport, error) {
	out := map[string]*StdioTransport{}
	for _, def := range defs {
		t, err := Spawn(def.ID, def.Command, def.Args, def.Env)
		if err != nil {
			for _, started := range out {
				_ = started.Shutdown()
			}
			return nil, err
		}
		out[def.ID] = t
	}
	return out, nil
}
