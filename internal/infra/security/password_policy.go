package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/hugopriorizen/Base/internal/core/port"
)

const maxStrengthScore = 4

// PasswordPolicyConfig selects which password rules are enforced.
type PasswordPolicyConfig struct {
	MinLength              int
	RequireUppercase       bool
	RequireLowercase       bool
	RequireDigit           bool
	RequireNonAlphanumeric bool
	// MinStrengthScore is a zxcvbn score from 1 to 4; zero disables the check.
	MinStrengthScore int
}

// DefaultPasswordPolicyConfig returns the account password rules: eight characters with upper,
// lower, digit and special character.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:              8,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireDigit:           true,
		RequireNonAlphanumeric: true,
	}
}

// passwordRule is one check with the message shown when it fails. userInputs only matter to the
// strength rule.
type passwordRule struct {
	message   string
	satisfied func(password string, userInputs []string) bool
}

// PasswordPolicy reports every violated rule rather than stopping at the first.
type PasswordPolicy struct {
	rules []passwordRule
}

// NewPasswordPolicy compiles the enabled rules in a fixed order: length, character classes, strength.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	var rules []passwordRule

	if cfg.MinLength > 0 {
		minLen := cfg.MinLength
		rules = append(rules, passwordRule{
			message: fmt.Sprintf("Password must be at least %d characters", minLen),
			satisfied: func(password string, _ []string) bool {
				return len([]rune(password)) >= minLen
			},
		})
	}
	if cfg.RequireUppercase {
		rules = append(rules, containsRule("Password must contain at least one uppercase letter", unicode.IsUpper))
	}
	if cfg.RequireLowercase {
		rules = append(rules, containsRule("Password must contain at least one lowercase letter", unicode.IsLower))
	}
	if cfg.RequireDigit {
		rules = append(rules, containsRule("Password must contain at least one number", unicode.IsDigit))
	}
	if cfg.RequireNonAlphanumeric {
		rules = append(rules, containsRule("Password must contain at least one special character", func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
	}
	if cfg.MinStrengthScore > 0 {
		rules = append(rules, strengthRule(min(cfg.MinStrengthScore, maxStrengthScore)))
	}

	return &PasswordPolicy{rules: rules}
}

func containsRule(message string, match func(rune) bool) passwordRule {
	return passwordRule{
		message: message,
		satisfied: func(password string, _ []string) bool {
			return strings.IndexFunc(password, match) >= 0
		},
	}
}

// strengthRule scores the password with zxcvbn. The user name and email join its dictionary so
// passwords derived from them score lower.
func strengthRule(minScore int) passwordRule {
	return passwordRule{
		message: "Password is too weak; choose a more complex value",
		satisfied: func(password string, userInputs []string) bool {
			return zxcvbn.PasswordStrength(password, userInputs).Score >= minScore
		},
	}
}

// Violations returns the message of every rule the password breaks.
func (p *PasswordPolicy) Violations(password string, userInputs ...string) []string {
	inputs := make([]string, 0, len(userInputs))
	for _, input := range userInputs {
		if trimmed := strings.TrimSpace(input); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	var violations []string
	for _, rule := range p.rules {
		if !rule.satisfied(password, inputs) {
			violations = append(violations, rule.message)
		}
	}
	return violations
}

var _ port.PasswordPolicy = (*PasswordPolicy)(nil)
