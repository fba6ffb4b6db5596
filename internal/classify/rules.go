package classify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/stmtledger/internal/model"
)

// RuleFile is the on-disk shape of a classification rule table.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in table.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: model.ClassFee, Patterns: []string{`\bFEES?\b`, `SERVICE CHARGE`, `\bNSF\b`, `OVERDRAFT`}},
		{Tag: model.ClassTransfer, Patterns: []string{`E-TRANSFER`, `\bTRANSFER\b`, `\bTFR\b`, `\bXFER\b`}},
		{Tag: model.ClassDeposit, Sign: SignCredit, Patterns: []string{`.`}},
		{Tag: model.ClassVendorExpense, Sign: SignDebit, Patterns: []string{`\bPURCHASE\b`, `\bPOS\b`, `AUTO LEASE`, `\bDEBIT CARD\b`, `\bPAYMENT\b`, `\bCHQ\b`, `\bCHECK\b`}},
	}
}

// Default returns a Classifier over DefaultRules.
func Default() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML rule file. A missing file yields the default table.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}

	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	return New(rf.Rules)
}

// Save writes rules to a YAML file.
func Save(path string, rules []Rule) error {
	data, err := yaml.Marshal(RuleFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
