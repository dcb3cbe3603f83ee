// Package template renders depositor-facing messages. Placeholders use the
// #NAME# marker form; rendering fails loudly when a marker has no value
// instead of leaving literal markers in the sent message.
package template

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var markerPattern = regexp.MustCompile(`#[A-Z_]+#`)

// Render substitutes every #KEY# marker in tmpl with vars["KEY"]. Any marker
// left without a value is an error; unused vars are fine.
func Render(tmpl string, vars map[string]string) (string, error) {
	out := tmpl
	for key, value := range vars {
		out = strings.ReplaceAll(out, "#"+key+"#", value)
	}

	if leftover := markerPattern.FindAllString(out, -1); len(leftover) > 0 {
		seen := make(map[string]struct{}, len(leftover))
		unique := make([]string, 0, len(leftover))
		for _, m := range leftover {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			unique = append(unique, m)
		}
		sort.Strings(unique)
		return "", fmt.Errorf("unresolved placeholders: %s", strings.Join(unique, ", "))
	}

	return out, nil
}

// Message is one subject + body pair.
type Message struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Set holds every depositor-facing message the bot can send.
type Set struct {
	// DepositFound acknowledges a matched deposit at or above the minimum.
	DepositFound Message `yaml:"deposit_found"`
	// LotteryEntry acknowledges a matched deposit below the minimum.
	LotteryEntry Message `yaml:"lottery_entry"`
	// Settled confirms the destination-chain payout.
	Settled Message `yaml:"settled"`
	// LotteryWinner announces a lottery draw result.
	LotteryWinner Message `yaml:"lottery_winner"`
}

// Load reads the message set from a YAML file and verifies every message is
// present.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	for name, m := range map[string]Message{
		"deposit_found":  s.DepositFound,
		"lottery_entry":  s.LotteryEntry,
		"settled":        s.Settled,
		"lottery_winner": s.LotteryWinner,
	} {
		if strings.TrimSpace(m.Subject) == "" || strings.TrimSpace(m.Body) == "" {
			return nil, fmt.Errorf("template %s: subject and body are required", name)
		}
	}

	return &s, nil
}
