// Pure evaluation of post attributes against whitelist and blacklist rule sets.
//
// Nothing in this package does I/O. Patterns are compiled (and rejected if invalid) when settings are parsed, so evaluation can not fail.
package rules

import (
	"regexp"
	"strings"

	"github.com/modwarden/warden/automod/helpers"
	"github.com/modwarden/warden/automod/platform"
)

type ListPolicy string

const (
	Whitelist ListPolicy = "whitelist"
	Blacklist ListPolicy = "blacklist"
	Both      ListPolicy = "both"
	None      ListPolicy = "none"
)

func (p ListPolicy) Valid() bool {
	switch p {
	case Whitelist, Blacklist, Both, None:
		return true
	}
	return false
}

// Immutable snapshot of the post fields which rules are evaluated against.
type Attributes struct {
	ID            string
	Title         string
	Body          string
	FlairText     string
	FlairID       string
	UserFlairText string
	UserFlairID   string
	AuthorID      string
	AuthorName    string
	RemovedBy     platform.RemovalCategory
}

// flair may be nil if the author has no flair
func NewAttributes(post *platform.Post, flair *platform.UserFlair) Attributes {
	attrs := Attributes{
		ID:         post.ID,
		Title:      post.Title,
		Body:       post.Body,
		FlairText:  post.FlairText,
		FlairID:    post.FlairTemplateID,
		AuthorID:   post.AuthorID,
		AuthorName: post.AuthorName,
		RemovedBy:  post.RemovedBy,
	}
	if flair != nil {
		attrs.UserFlairText = flair.Text
		attrs.UserFlairID = flair.TemplateID
	}
	return attrs
}

// A set of optional criteria. A zero field means the criterion is not configured.
type RuleSet struct {
	Title            *regexp.Regexp
	Body             *regexp.Regexp
	BodyLinkRequired bool
	MinBodyLength    int
	// compared case-insensitively
	FlairTexts []string
	// compared exactly
	FlairIDs       []string
	UserFlairTexts []string
	UserFlairIDs   []string
}

func (rs *RuleSet) Empty() bool {
	return rs.Title == nil && rs.Body == nil && !rs.BodyLinkRequired && rs.MinBodyLength <= 0 &&
		len(rs.FlairTexts) == 0 && len(rs.FlairIDs) == 0 && len(rs.UserFlairTexts) == 0 && len(rs.UserFlairIDs) == 0
}

// A single criterion. Returns whether the criterion is configured in the rule set, and if so whether the attributes pass it.
type criterionFunc func(attrs *Attributes, rs *RuleSet) (configured bool, pass bool)

var criteria = []criterionFunc{
	titleCriterion,
	bodyCriterion,
	bodyLinkCriterion,
	bodyLengthCriterion,
	flairTextCriterion,
	flairIDCriterion,
	userFlairTextCriterion,
	userFlairIDCriterion,
}

// Evaluates a single rule set with the given polarity, which must be Whitelist or Blacklist.
//
// Unconfigured criteria pass under whitelist and do not trigger under blacklist. A whitelist matches when every criterion passes. A blacklist "matches" (meaning the post is clear of exclusions) only when no criterion passes.
func Evaluate(attrs *Attributes, rs *RuleSet, polarity ListPolicy) bool {
	def := polarity == Whitelist
	for _, f := range criteria {
		configured, pass := f(attrs, rs)
		if !configured {
			pass = def
		}
		if def && !pass {
			return false
		}
		if !def && pass {
			return false
		}
	}
	return true
}

func titleCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	if rs.Title == nil {
		return false, false
	}
	return true, rs.Title.MatchString(attrs.Title)
}

func bodyCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	if rs.Body == nil {
		return false, false
	}
	return true, rs.Body.MatchString(attrs.Body)
}

func bodyLinkCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	if !rs.BodyLinkRequired {
		return false, false
	}
	return true, helpers.ContainsLink(attrs.Body)
}

func bodyLengthCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	if rs.MinBodyLength <= 0 {
		return false, false
	}
	return true, helpers.TextLength(attrs.Body) >= rs.MinBodyLength
}

func flairTextCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	return matchText(attrs.FlairText, rs.FlairTexts)
}

func flairIDCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	return matchID(attrs.FlairID, rs.FlairIDs)
}

func userFlairTextCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	return matchText(attrs.UserFlairText, rs.UserFlairTexts)
}

func userFlairIDCriterion(attrs *Attributes, rs *RuleSet) (bool, bool) {
	return matchID(attrs.UserFlairID, rs.UserFlairIDs)
}

func matchText(val string, set []string) (bool, bool) {
	if len(set) == 0 {
		return false, false
	}
	for _, s := range set {
		if strings.EqualFold(s, val) {
			return true, true
		}
	}
	return true, false
}

func matchID(val string, set []string) (bool, bool) {
	if len(set) == 0 {
		return false, false
	}
	for _, s := range set {
		if s == val {
			return true, true
		}
	}
	return true, false
}
