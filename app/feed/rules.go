package feed

import (
	"regexp"

	"peerpress/app/database"
)

const maxRuleRegexLen = 10240

// Verdict is the outcome of running a feed item through a friend's rules.
type Verdict int

const (
	VerdictAccept Verdict = iota
	VerdictTrash
	VerdictDelete
)

var ruleFields = map[string]bool{
	database.RuleFieldTitle:     true,
	database.RuleFieldContent:   true,
	database.RuleFieldPermalink: true,
	database.RuleFieldAuthor:    true,
}

var ruleActions = map[string]bool{
	database.RuleActionAccept:  true,
	database.RuleActionTrash:   true,
	database.RuleActionDelete:  true,
	database.RuleActionReplace: true,
}

// ValidateRules drops malformed rules and renumbers the survivors. A rule is
// malformed when its field or action is unknown, its regular expression is empty or
// oversized, or it does not compile. Oversized replacements are truncated.
func ValidateRules(rules []database.Rule) []database.Rule {
	valid := make([]database.Rule, 0, len(rules))
	for _, rule := range rules {
		if !ruleFields[rule.Field] || !ruleActions[rule.Action] {
			continue
		}
		if rule.Regex == "" || len(rule.Regex) > maxRuleRegexLen {
			continue
		}
		if _, err := compileRule(rule.Regex); err != nil {
			continue
		}
		if len(rule.Replacement) > maxRuleRegexLen {
			rule.Replacement = rule.Replacement[:maxRuleRegexLen]
		}
		rule.Position = len(valid)
		valid = append(valid, rule)
	}
	return valid
}

// ValidateCatchAll returns action if it is a terminal action, else accept.
func ValidateCatchAll(action string) string {
	switch action {
	case database.RuleActionAccept, database.RuleActionTrash, database.RuleActionDelete:
		return action
	}
	return database.RuleActionAccept
}

// RuleEngine evaluates per-friend rules against feed items.
type RuleEngine struct{}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// Run applies rules to item in position order. Accept, trash and delete stop
// the evaluation; replace rewrites the matched field in place and continues.
// When no rule decides, catchAll does. Rules that fail to compile are skipped.
func (e *RuleEngine) Run(item *Item, rules []database.Rule, catchAll string) Verdict {
	for _, rule := range rules {
		pattern, err := compileRule(rule.Regex)
		if err != nil {
			continue
		}

		value := fieldValue(item, rule.Field)
		if rule.Action == database.RuleActionReplace {
			if pattern.MatchString(value) {
				setFieldValue(item, rule.Field, pattern.ReplaceAllString(value, rule.Replacement))
			}
			continue
		}
		if !pattern.MatchString(value) {
			continue
		}
		switch rule.Action {
		case database.RuleActionAccept:
			return VerdictAccept
		case database.RuleActionTrash:
			return VerdictTrash
		case database.RuleActionDelete:
			return VerdictDelete
		}
	}

	switch ValidateCatchAll(catchAll) {
	case database.RuleActionTrash:
		return VerdictTrash
	case database.RuleActionDelete:
		return VerdictDelete
	}
	return VerdictAccept
}

func compileRule(expression string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + expression)
}

func fieldValue(item *Item, field string) string {
	switch field {
	case database.RuleFieldTitle:
		return item.Title
	case database.RuleFieldContent:
		return item.Content
	case database.RuleFieldPermalink:
		return item.Permalink
	case database.RuleFieldAuthor:
		return item.Author()
	}
	return ""
}

func setFieldValue(item *Item, field, value string) {
	switch field {
	case database.RuleFieldTitle:
		item.Title = value
	case database.RuleFieldContent:
		item.Content = value
	case database.RuleFieldPermalink:
		item.Permalink = value
	case database.RuleFieldAuthor:
		item.AuthorName = value
	}
}
