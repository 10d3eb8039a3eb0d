// Package classifier derives lead temperature, stage transitions and structured
// attributes from inbound message text using deterministic keyword rules.
package classifier

import (
	"fmt"
	"strings"

	"github.com/wolfman30/leadflow/internal/leads"
)

// NoRuleReason is recorded when no intent rule matched the text.
const NoRuleReason = "no rule matched"

// Rule names surfaced to operators and metrics.
const (
	RuleRefusal      = "refusal"
	RulePriceInquiry = "price_inquiry"
	RuleCallRequest  = "call_request"
	RuleNone         = "none"
)

// Result is the outcome of classifying one inbound message.
type Result struct {
	// Temperature is empty when the text leaves the lead's temperature unchanged.
	Temperature leads.Temperature
	// StageHint is empty when no stage transition is suggested.
	StageHint leads.StageType
	Patch     leads.Attributes
	Rule      string
	Reason    string
}

// Matched reports whether an intent rule fired.
func (r Result) Matched() bool {
	return r.Rule != "" && r.Rule != RuleNone
}

// Apply merges the result into lead. Attributes are merged additively.
func (r Result) Apply(lead *leads.Lead) {
	if lead == nil {
		return
	}
	if r.Temperature != "" {
		lead.Temperature = r.Temperature
	}
	if r.StageHint != "" {
		lead.StageType = r.StageHint
	}
	if len(r.Patch) > 0 {
		lead.Attributes = lead.Attributes.Merge(r.Patch)
	}
}

// Classifier interprets inbound text. Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(text string) Result
}

type intentRule struct {
	name        string
	phrases     []string
	temperature leads.Temperature
	stage       leads.StageType
}

// Rules are evaluated in order; the first rule with a matching phrase wins.
var defaultRules = []intentRule{
	{
		name: RuleRefusal,
		phrases: []string{
			"не интересно", "неинтересно", "не актуально", "неактуально",
			"не нужно", "не надо", "уже не нужно", "передумал", "отказываюсь",
			"нет, спасибо", "нет спасибо", "не пишите", "не беспокойте",
		},
		temperature: leads.TemperatureCold,
		stage:       leads.StageRefused,
	},
	{
		name: RulePriceInquiry,
		phrases: []string{
			"сколько стоит", "сколько будет стоить", "стоимость", "цена", "цену", "цены",
			"почем", "почём", "прайс", "расценки", "смета", "сколько денег",
		},
		temperature: leads.TemperatureWarm,
		stage:       leads.StageInProgress,
	},
	{
		name: RuleCallRequest,
		phrases: []string{
			"позвоните", "перезвоните", "позвонить", "перезвонить", "звонок",
			"созвонимся", "созвониться", "наберите", "свяжитесь со мной",
		},
		temperature: leads.TemperatureHot,
		stage:       leads.StageWantsCall,
	},
}

// RuleClassifier is the default keyword-driven Classifier.
type RuleClassifier struct {
	rules []intentRule
}

// New returns a RuleClassifier with the built-in phrase lists.
func New() *RuleClassifier {
	return &RuleClassifier{rules: defaultRules}
}

var _ Classifier = (*RuleClassifier)(nil)

// Classify lower-cases text, picks the first matching intent rule and extracts attributes.
func (c *RuleClassifier) Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	res := Result{
		Rule:   RuleNone,
		Reason: NoRuleReason,
		Patch:  Extract(normalized),
	}
	if normalized == "" {
		return res
	}
	for _, rule := range c.rules {
		for _, phrase := range rule.phrases {
			if strings.Contains(normalized, phrase) {
				res.Temperature = rule.temperature
				res.StageHint = rule.stage
				res.Rule = rule.name
				res.Reason = fmt.Sprintf("matched %s phrase %q", rule.name, phrase)
				return res
			}
		}
	}
	return res
}
