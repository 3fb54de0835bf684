package chains

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strongroomhq/strongroom/pkg/types"
)

//go:embed chains.yaml
var builtinRegistry []byte

// DefaultReorgThreshold applies to chains the registry does not know.
const DefaultReorgThreshold int64 = 32

// Ecosystem is a family of chains sharing a protocol and an address format.
type Ecosystem string

const (
	EcosystemEVM       Ecosystem = "evm"
	EcosystemSVM       Ecosystem = "svm"
	EcosystemUTXO      Ecosystem = "utxo"
	EcosystemTVM       Ecosystem = "tvm"
	EcosystemXRP       Ecosystem = "xrp"
	EcosystemSubstrate Ecosystem = "substrate"
)

// Chain describes one supported blockchain.
type Chain struct {
	Alias          string    `yaml:"alias"`
	Name           string    `yaml:"name"`
	Ecosystem      Ecosystem `yaml:"ecosystem"`
	ReorgThreshold int64     `yaml:"reorgThreshold"`
	Provider       string    `yaml:"provider"`
	NativeSymbol   string    `yaml:"nativeSymbol"`
	NativeDecimals int       `yaml:"nativeDecimals"`
}

// Registry resolves chain aliases to chain parameters. Lookups are hot
// paths in the worker, so the registry is immutable after construction.
type Registry struct {
	byAlias map[string]Chain
}

type registryFile struct {
	Chains []Chain `yaml:"chains"`
}

// NewRegistry loads the built-in chain set.
func NewRegistry() (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(builtinRegistry, &f); err != nil {
		return nil, fmt.Errorf("parsing built-in chain registry: %w", err)
	}
	r := &Registry{byAlias: make(map[string]Chain, len(f.Chains))}
	for _, c := range f.Chains {
		if c.Alias == "" {
			return nil, fmt.Errorf("chain registry entry missing alias: %+v", c)
		}
		r.byAlias[c.Alias] = c
	}
	return r, nil
}

// WithThresholdOverrides returns a copy of the registry with per-chain
// reorg thresholds replaced. Unknown aliases in the override map are
// ignored; operators may carry overrides for chains not yet enabled.
func (r *Registry) WithThresholdOverrides(overrides map[string]int64) *Registry {
	if len(overrides) == 0 {
		return r
	}
	out := &Registry{byAlias: make(map[string]Chain, len(r.byAlias))}
	for alias, c := range r.byAlias {
		if t, ok := overrides[alias]; ok && t >= 0 {
			c.ReorgThreshold = t
		}
		out.byAlias[alias] = c
	}
	return out
}

// Get returns the chain for alias, or ErrUnsupportedChain.
func (r *Registry) Get(alias string) (Chain, error) {
	c, ok := r.byAlias[alias]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %s", types.ErrUnsupportedChain, alias)
	}
	return c, nil
}

// Supported reports whether alias is in the registry.
func (r *Registry) Supported(alias string) bool {
	_, ok := r.byAlias[alias]
	return ok
}

// Aliases returns all registered aliases, unordered.
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.byAlias))
	for a := range r.byAlias {
		out = append(out, a)
	}
	return out
}

// ReorgThreshold returns the unsafe-tip window for alias, falling back to
// DefaultReorgThreshold for unknown chains.
func (r *Registry) ReorgThreshold(alias string) int64 {
	if c, ok := r.byAlias[alias]; ok {
		return c.ReorgThreshold
	}
	return DefaultReorgThreshold
}

// SafeFromBlock computes the reorg-safe resume point for an incremental
// job: max(0, checkpoint - threshold(alias)).
func (r *Registry) SafeFromBlock(checkpoint int64, alias string) int64 {
	from := checkpoint - r.ReorgThreshold(alias)
	if from < 0 {
		return 0
	}
	return from
}

// NormalizeAddress canonicalizes an account identifier for comparison and
// storage. EVM addresses are case-insensitive hex, so they are lowercased;
// every other ecosystem uses case-sensitive encodings and is kept raw.
func (r *Registry) NormalizeAddress(alias, address string) string {
	return r.normalize(alias, address)
}

// NormalizeHash canonicalizes a transaction hash, with the same
// per-ecosystem rules as NormalizeAddress.
func (r *Registry) NormalizeHash(alias, hash string) string {
	return r.normalize(alias, hash)
}

func (r *Registry) normalize(alias, s string) string {
	c, ok := r.byAlias[alias]
	if ok && c.Ecosystem == EcosystemEVM {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return strings.TrimSpace(s)
}
