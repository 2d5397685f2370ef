package routing

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/bytedance/sonic"
)

// EngineConfig is the routing engine's own configuration file. Only the parts
// needed to reach the engine are interpreted; the rest is opaque.
type EngineConfig struct {
	Path   string
	Listen string
}

type engineConfigFile struct {
	Httpd struct {
		Service struct {
			Listen string `json:"listen"`
		} `json:"service"`
	} `json:"httpd"`
}

// LoadEngineConfig reads and parses the engine configuration at path.
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, err
	}
	var raw engineConfigFile
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return EngineConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return EngineConfig{Path: path, Listen: raw.Httpd.Service.Listen}, nil
}

// ServiceURL derives an HTTP base URL from the engine's listen address, e.g.
// "tcp://*:8002" becomes "http://127.0.0.1:8002". It returns "" for listen
// addresses that are not TCP.
func (c EngineConfig) ServiceURL() string {
	addr, ok := strings.CutPrefix(c.Listen, "tcp://")
	if !ok || addr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	if host == "*" || host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
