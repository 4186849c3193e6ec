package rules

import (
	"regexp"
	"strings"
	"testing"

	"github.com/modwarden/warden/automod/platform"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateEmpty(t *testing.T) {
	assert := assert.New(t)

	inputs := []Attributes{
		{},
		{Title: "anything", Body: "https://example.com", FlairText: "Meta", UserFlairID: "abc"},
		{Body: strings.Repeat("x", 5000)},
	}
	empty := RuleSet{}
	for _, attrs := range inputs {
		assert.True(Evaluate(&attrs, &empty, Whitelist))
		assert.True(Evaluate(&attrs, &empty, Blacklist))
		assert.True(CheckPost(&attrs, &Policy{List: Both}))
		assert.False(CheckPost(&attrs, &Policy{List: None}))
	}
}

func TestEvaluateTitlePattern(t *testing.T) {
	assert := assert.New(t)

	rs := RuleSet{Title: regexp.MustCompile(`(?i)^\[Discussion\]`)}
	p := Policy{List: Whitelist, Whitelist: rs}

	yes := Attributes{Title: "[discussion] weekly thread"}
	no := Attributes{Title: "Weekly thread"}
	assert.True(CheckPost(&yes, &p))
	assert.False(CheckPost(&no, &p))
}

func TestEvaluateBlacklistLink(t *testing.T) {
	assert := assert.New(t)

	p := Policy{List: Blacklist, Blacklist: RuleSet{BodyLinkRequired: true}}

	linked := Attributes{Body: "see https://example.com"}
	plain := Attributes{Body: "no links"}
	assert.False(CheckPost(&linked, &p))
	assert.True(CheckPost(&plain, &p))
}

func TestEvaluateFlair(t *testing.T) {
	assert := assert.New(t)

	rs := RuleSet{
		FlairTexts: []string{"needs source", "question"},
	}
	for _, text := range []string{"Needs Source", "NEEDS SOURCE", "needs source", "Question"} {
		attrs := Attributes{FlairText: text}
		assert.True(Evaluate(&attrs, &rs, Whitelist), text)
		assert.False(Evaluate(&attrs, &rs, Blacklist), text)
	}
	other := Attributes{FlairText: "Meta"}
	assert.False(Evaluate(&other, &rs, Whitelist))
	assert.True(Evaluate(&other, &rs, Blacklist))

	ids := RuleSet{FlairIDs: []string{"AbC-123"}, UserFlairIDs: []string{"uF-1"}}
	exact := Attributes{FlairID: "AbC-123", UserFlairID: "uF-1"}
	upper := Attributes{FlairID: "ABC-123", UserFlairID: "uF-1"}
	lower := Attributes{FlairID: "abc-123", UserFlairID: "uF-1"}
	assert.True(Evaluate(&exact, &ids, Whitelist))
	assert.False(Evaluate(&upper, &ids, Whitelist))
	assert.False(Evaluate(&lower, &ids, Whitelist))

	userText := RuleSet{UserFlairTexts: []string{"verified"}}
	verified := Attributes{UserFlairText: "Verified"}
	assert.True(Evaluate(&verified, &userText, Whitelist))
	assert.False(Evaluate(&Attributes{}, &userText, Whitelist))
}

func TestEvaluateBodyLength(t *testing.T) {
	assert := assert.New(t)

	rs := RuleSet{MinBodyLength: 4}
	assert.True(Evaluate(&Attributes{Body: "日本語です"}, &rs, Whitelist))
	assert.False(Evaluate(&Attributes{Body: "日本"}, &rs, Whitelist))
	assert.True(Evaluate(&Attributes{Body: "日本"}, &rs, Blacklist))
}

func TestEvaluateCombination(t *testing.T) {
	assert := assert.New(t)

	rs := RuleSet{
		Body:             regexp.MustCompile(`source`),
		BodyLinkRequired: true,
	}
	both := Attributes{Body: "source: https://example.com"}
	one := Attributes{Body: "source is my uncle"}
	neither := Attributes{Body: "trust me"}

	// whitelist is AND
	assert.True(Evaluate(&both, &rs, Whitelist))
	assert.False(Evaluate(&one, &rs, Whitelist))
	assert.False(Evaluate(&neither, &rs, Whitelist))

	// blacklist is NOR
	assert.False(Evaluate(&both, &rs, Blacklist))
	assert.False(Evaluate(&one, &rs, Blacklist))
	assert.True(Evaluate(&neither, &rs, Blacklist))

	p := Policy{
		List:      Both,
		Whitelist: RuleSet{Title: regexp.MustCompile(`(?i)^\[oc\]`)},
		Blacklist: RuleSet{FlairTexts: []string{"meta"}},
	}
	assert.True(CheckPost(&Attributes{Title: "[OC] my garden"}, &p))
	assert.False(CheckPost(&Attributes{Title: "[OC] my garden", FlairText: "Meta"}, &p))
	assert.False(CheckPost(&Attributes{Title: "my garden"}, &p))
}

func TestPostIsEligible(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		removed platform.RemovalCategory
		ignore  PostIgnore
		out     bool
	}{
		{removed: platform.RemovedNone, ignore: PostIgnore{Removed: true, Platform: true, Filtered: true}, out: true},
		{removed: platform.RemovedAuthor, ignore: PostIgnore{Removed: true}, out: false},
		{removed: platform.RemovedModerator, ignore: PostIgnore{Removed: true}, out: false},
		{removed: platform.RemovedModerator, ignore: PostIgnore{Platform: true, Filtered: true}, out: true},
		{removed: platform.RemovedPlatform, ignore: PostIgnore{Platform: true}, out: false},
		{removed: platform.RemovedPlatform, ignore: PostIgnore{Removed: true}, out: true},
		{removed: platform.RemovedFiltered, ignore: PostIgnore{Filtered: true}, out: false},
		{removed: platform.RemovedFiltered, ignore: PostIgnore{}, out: true},
		{removed: platform.RemovalCategory("copyright"), ignore: PostIgnore{}, out: false},
	}

	for _, fix := range fixtures {
		attrs := Attributes{RemovedBy: fix.removed}
		assert.Equal(fix.out, PostIsEligible(&attrs, fix.ignore), string(fix.removed))
	}

	// an ineligible post never reaches the rule engine
	p := Policy{List: Whitelist, Ignore: PostIgnore{Removed: true}}
	assert.False(CheckPost(&Attributes{RemovedBy: platform.RemovedAuthor}, &p))
}

func TestNewAttributes(t *testing.T) {
	assert := assert.New(t)

	post := platform.Post{ID: "t3_1", Title: "t", FlairText: "Meta", FlairTemplateID: "f1", AuthorID: "t2_a"}
	attrs := NewAttributes(&post, nil)
	assert.Equal("", attrs.UserFlairText)
	assert.Equal("f1", attrs.FlairID)

	attrs = NewAttributes(&post, &platform.UserFlair{Text: "Verified", TemplateID: "u1"})
	assert.Equal("Verified", attrs.UserFlairText)
	assert.Equal("u1", attrs.UserFlairID)
}
