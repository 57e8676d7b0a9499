package matcher

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Rule rewrites an attribute value before comparison
type Rule func(string) string

// Identity returns its input
func Identity(s string) string { return s }

// StripAccents removes combining marks after canonical decomposition
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold applies Unicode case folding
func Fold(s string) string {
	return cases.Fold().String(s)
}

var builtinRules = map[string]Rule{
	"identity": Identity,
	"trim":     strings.TrimSpace,
	"lower": func(s string) string {
		return cases.Lower(language.Und).String(s)
	},
	"upper": func(s string) string {
		return cases.Upper(language.Und).String(s)
	},
	"strip-accents": StripAccents,
	"collapse-spaces": func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	},
	"alnum": func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
				return r
			}
			return -1
		}, s)
	},
}

// Chain composes rules left to right
func Chain(rules ...Rule) Rule {
	return func(s string) string {
		for _, r := range rules {
			s = r(s)
		}
		return s
	}
}

// RuleSet resolves rule names. It starts with the built-in rules; named
// chains are added with Register or LoadRuleFile.
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet returns a RuleSet holding the built-in rules
func NewRuleSet() *RuleSet {
	rs := &RuleSet{rules: make(map[string]Rule, len(builtinRules))}
	for name, r := range builtinRules {
		rs.rules[name] = r
	}
	return rs
}

// Register adds or replaces a named rule
func (rs *RuleSet) Register(name string, r Rule) {
	rs.rules[name] = r
}

// Names lists the known rules in sorted order
func (rs *RuleSet) Names() []string {
	out := make([]string, 0, len(rs.rules))
	for n := range rs.rules {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the rule for a name. The empty name is the identity; a
// comma-separated list resolves to the chain of its members.
func (rs *RuleSet) Resolve(name string) (Rule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity, nil
	}
	if r, ok := rs.rules[name]; ok {
		return r, nil
	}
	if !strings.Contains(name, ",") {
		return nil, eris.Wrapf(ErrConfig, "unknown rule %q", name)
	}
	var chain []Rule
	for _, part := range strings.Split(name, ",") {
		r, ok := rs.rules[strings.TrimSpace(part)]
		if !ok {
			return nil, eris.Wrapf(ErrConfig, "unknown rule %q in %q", strings.TrimSpace(part), name)
		}
		chain = append(chain, r)
	}
	return Chain(chain...), nil
}

type ruleFile struct {
	Rules map[string][]ruleStep `yaml:"rules"`
}

// ruleStep is either a rule name or a {replace: {pattern, with}} mapping
type ruleStep struct {
	Name    string
	Replace *replaceStep
}

type replaceStep struct {
	Pattern string `yaml:"pattern"`
	With    string `yaml:"with"`
}

func (s *ruleStep) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Name)
	case yaml.MappingNode:
		var m struct {
			Replace *replaceStep `yaml:"replace"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		if m.Replace == nil {
			return eris.Errorf("line %d: unsupported rule step", value.Line)
		}
		s.Replace = m.Replace
		return nil
	}
	return eris.Errorf("line %d: rule step must be a name or a mapping", value.Line)
}

// LoadRuleFile reads named rule chains from a YAML file into rs.
//
//	rules:
//	  street:
//	    - lower
//	    - strip-accents
//	    - replace: {pattern: "^(rue|avenue) ", with: ""}
//	    - collapse-spaces
func (rs *RuleSet) LoadRuleFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(ErrConfig, "reading rule file %s: %v", path, err)
	}
	return rs.ParseRules(data)
}

// ParseRules reads named rule chains from YAML bytes into rs. Steps may
// reference built-in rules or rules registered before the call.
func (rs *RuleSet) ParseRules(data []byte) error {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrapf(ErrConfig, "parsing rule file: %v", err)
	}

	names := make([]string, 0, len(f.Rules))
	for n := range f.Rules {
		names = append(names, n)
	}
	sort.Strings(names)

	built := make(map[string]Rule, len(names))
	for _, name := range names {
		chain := make([]Rule, 0, len(f.Rules[name]))
		for i, step := range f.Rules[name] {
			if step.Replace != nil {
				re, err := regexp.Compile(step.Replace.Pattern)
				if err != nil {
					return eris.Wrapf(ErrConfig, "rule %q step %d: %v", name, i+1, err)
				}
				with := step.Replace.With
				chain = append(chain, func(s string) string {
					return re.ReplaceAllString(s, with)
				})
				continue
			}
			r, ok := rs.rules[step.Name]
			if !ok {
				return eris.Wrapf(ErrConfig, "rule %q step %d: unknown rule %q", name, i+1, step.Name)
			}
			chain = append(chain, r)
		}
		built[name] = Chain(chain...)
	}
	for name, r := range built {
		rs.rules[name] = r
	}
	return nil
}
