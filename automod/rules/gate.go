package rules

import (
	"github.com/modwarden/warden/automod/platform"
)

// Which categories of removed posts are excluded from processing.
type PostIgnore struct {
	// removed by the author, or by a moderator
	Removed  bool
	Platform bool
	Filtered bool
}

// Everything required to decide whether a post is in scope.
type Policy struct {
	List      ListPolicy
	Ignore    PostIgnore
	Whitelist RuleSet
	Blacklist RuleSet
}

// Checks removal state against the ignore preference. Removal categories which are not known are always excluded.
func PostIsEligible(attrs *Attributes, ignore PostIgnore) bool {
	switch attrs.RemovedBy {
	case platform.RemovedNone:
		return true
	case platform.RemovedAuthor, platform.RemovedModerator:
		return !ignore.Removed
	case platform.RemovedPlatform:
		return !ignore.Platform
	case platform.RemovedFiltered:
		return !ignore.Filtered
	default:
		return false
	}
}

// Full gate: removal eligibility, then the configured list policy.
func CheckPost(attrs *Attributes, p *Policy) bool {
	if !PostIsEligible(attrs, p.Ignore) {
		return false
	}
	switch p.List {
	case Whitelist:
		return Evaluate(attrs, &p.Whitelist, Whitelist)
	case Blacklist:
		return Evaluate(attrs, &p.Blacklist, Blacklist)
	case Both:
		return Evaluate(attrs, &p.Whitelist, Whitelist) && Evaluate(attrs, &p.Blacklist, Blacklist)
	default:
		return false
	}
}
