package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var networksYAML []byte

// Network lists the well-known contracts of one chain.
type Network struct {
	ChainID     uint64      `yaml:"chainId"`
	CreditLib   string      `yaml:"creditLib"`
	YearnLens   string      `yaml:"yearnLens"`
	Factories   []string    `yaml:"factories"`
	Deprecation Deprecation `yaml:"deprecation"`
}

// Deprecation retires factory deployments after Block.
type Deprecation struct {
	Factories []string `yaml:"factories"`
	Block     uint64   `yaml:"block"`
}

var (
	networksOnce sync.Once
	networks     map[string]Network
	networksErr  error
)

// Networks returns the embedded network registry.
func Networks() (map[string]Network, error) {
	networksOnce.Do(func() {
		networks = map[string]Network{}
		if err := yaml.Unmarshal(networksYAML, &networks); err != nil {
			networksErr = fmt.Errorf("config: decode networks: %w", err)
		}
	})
	return networks, networksErr
}

// LookupNetwork returns the named network.
func LookupNetwork(name string) (Network, bool) {
	all, err := Networks()
	if err != nil {
		return Network{}, false
	}
	n, ok := all[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// Addresses parses hex strings, skipping blanks.
func Addresses(raw []string) []common.Address {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, common.HexToAddress(s))
		}
	}
	return out
}

// Address parses a single optional hex address.
func Address(raw string) common.Address {
	if raw = strings.TrimSpace(raw); raw == "" {
		return common.Address{}
	}
	return common.HexToAddress(raw)
}
