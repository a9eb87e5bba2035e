package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a declarative end-to-end test: seeded ledger state, a sequence
// of operation submissions, and the verdict expected for each.
type Scenario struct {
	Name     string    `yaml:"name"`
	Accounts []Account `yaml:"accounts"`
	Vaults   []Vault   `yaml:"vaults"`
	Steps    []Step    `yaml:"steps"`
}

// Account seeds one user account. Its authority identity is derived
// deterministically from the account name.
type Account struct {
	Name    string `yaml:"name"`
	Balance uint64 `yaml:"balance"`
}

// Vault seeds one vault at the address derived from its owner account. The
// vault's authority is the owner's identity.
type Vault struct {
	Owner   string `yaml:"owner"`
	Balance uint64 `yaml:"balance"`
	Frozen  bool   `yaml:"frozen"`
}

// Step is one operation submission. Vault names the owner whose derived
// vault fills slot 0; Owner names the account in slot 1 for two-slot
// operations. Endorsers sign the request digest with their account keys.
type Step struct {
	Op        string         `yaml:"op"`
	Vault     string         `yaml:"vault"`
	Owner     string         `yaml:"owner"`
	Args      map[string]any `yaml:"args"`
	Endorsers []string       `yaml:"endorsers"`
	Expect    Expect         `yaml:"expect"`
}

// Expect is the asserted outcome of a step. An empty verdict defaults to
// accepted. ErrorKind, Slot, and Code are only checked when set.
type Expect struct {
	Verdict   string `yaml:"verdict"`
	ErrorKind string `yaml:"error_kind"`
	Slot      *int   `yaml:"slot"`
	Code      string `yaml:"code"`
}

// LoadScenario reads and validates one scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: no steps", path)
	}

	accounts := make(map[string]bool, len(sc.Accounts))
	for _, a := range sc.Accounts {
		if a.Name == "" {
			return nil, fmt.Errorf("scenario %s: account with empty name", path)
		}
		if accounts[a.Name] {
			return nil, fmt.Errorf("scenario %s: duplicate account %q", path, a.Name)
		}
		accounts[a.Name] = true
	}
	for _, v := range sc.Vaults {
		if !accounts[v.Owner] {
			return nil, fmt.Errorf("scenario %s: vault owner %q is not a declared account", path, v.Owner)
		}
	}
	for i, s := range sc.Steps {
		if s.Op == "" {
			return nil, fmt.Errorf("scenario %s: step %d missing op", path, i)
		}
		if s.Vault == "" {
			return nil, fmt.Errorf("scenario %s: step %d missing vault owner", path, i)
		}
	}
	return &sc, nil
}
