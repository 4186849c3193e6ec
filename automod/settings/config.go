package settings

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/comments"
	"github.com/modwarden/warden/automod/helpers"
	"github.com/modwarden/warden/automod/rules"
)

type Reminder struct {
	Enabled     bool
	Delay       time.Duration
	RemoveDelay time.Duration
	// raw template; rendered against live post data when the reminder is scheduled
	Message      string
	RandomValues []string
	Options      actions.CommentOptions
}

type Action struct {
	actions.Config
	Delay time.Duration
}

// Immutable, fully parsed moderation configuration. Built once per event and passed explicitly to everything downstream.
type Config struct {
	Policy        rules.Policy
	CommentIgnore comments.IgnorePolicy
	Comments      comments.Requirement
	Reminder      Reminder
	Action        Action
}

// Fetches current values from the store and parses them into a Config. The returned Values (with defaults filled in) are what gets persisted in task payloads.
func Load(ctx context.Context, store Store) (Values, *Config, error) {
	raw, err := store.Get(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	vals := raw.WithDefaults()
	cfg, err := Parse(vals)
	if err != nil {
		return nil, nil, err
	}
	return vals, cfg, nil
}

// Parses normalized values (missing keys take their defaults).
func Parse(raw Values) (*Config, error) {
	v, err := raw.Normalize()
	if err != nil {
		return nil, err
	}
	v = v.WithDefaults()

	cfg := Config{}
	cfg.Policy.List = rules.ListPolicy(v.Select("list-preference"))
	if !cfg.Policy.List.Valid() {
		cfg.Policy.List = rules.None
	}
	ignore := v.List("ignore-preference")
	cfg.Policy.Ignore = rules.PostIgnore{
		Removed:  slices.Contains(ignore, "removed"),
		Platform: slices.Contains(ignore, "reddit"),
		Filtered: slices.Contains(ignore, "filtered"),
	}
	if cfg.Policy.Whitelist, err = parseRuleSet(v, "wl-"); err != nil {
		return nil, err
	}
	if cfg.Policy.Blacklist, err = parseRuleSet(v, "bl-"); err != nil {
		return nil, err
	}

	cfg.CommentIgnore = comments.IgnorePolicy(v.Select("comment-ignore-preference"))
	if !cfg.CommentIgnore.Valid() {
		cfg.CommentIgnore = comments.IgnoreBoth
	}
	cfg.Comments = comments.Requirement{
		TopLevelOnly:   !v.Bool("comment-level"),
		OPOnly:         !v.Bool("comment-author"),
		IgnoredAuthors: helpers.LowerStrings(helpers.SplitList(v.String("comment-user-ignore"), ",")),
	}
	if !v.Bool("accept-any-comment") {
		cfg.Comments.Pattern, err = compile(v.String("comment-body-regex"), v.Bool("comment-regex-case"))
		if err != nil {
			return nil, fmt.Errorf("%w: comment-body-regex: %s", ErrInvalidSetting, msgInvalidRegex)
		}
		cfg.Comments.LinkRequired = v.Bool("comment-body-link")
	}

	cfg.Reminder = Reminder{
		Enabled:      v.Bool("reminder-enable"),
		Delay:        minutes(v.Int("reminder-delay"), 5),
		RemoveDelay:  minutes(v.Int("reminder-remove-delay"), 0),
		Message:      v.String("reminder-message"),
		RandomValues: helpers.SplitList(v.String("reminder-random"), ";"),
		Options:      commentOptions(v.List("reminder-options")),
	}

	cfg.Action = Action{
		Config: actions.Config{
			Kind:            actions.Kind(v.Select("missing-link-action")),
			ReportReason:    v.String("report-reason"),
			FlairTemplateID: v.String("change-flair-id"),
			RemovalReason:   v.String("removal-reason"),
			NotifyVia:       actions.NotifyVia(v.Select("notify-user-via")),
			Options:         commentOptions(v.List("action-notify-options")),
			ArchiveModmail:  v.Bool("modmail-archive"),
		},
		Delay: minutes(v.Int("missing-link-delay"), 10),
	}
	if !cfg.Action.Kind.Valid() {
		cfg.Action.Kind = actions.DoNothing
	}
	if !cfg.Action.NotifyVia.Valid() {
		cfg.Action.NotifyVia = actions.NotifyNone
	}
	return &cfg, nil
}

func parseRuleSet(v Values, prefix string) (rules.RuleSet, error) {
	var rs rules.RuleSet
	var err error
	if rs.Title, err = compile(v.String(prefix+"title-regex"), v.Bool(prefix+"title-regex-case")); err != nil {
		return rs, fmt.Errorf("%w: %stitle-regex: %s", ErrInvalidSetting, prefix, msgInvalidRegex)
	}
	if rs.Body, err = compile(v.String(prefix+"body-regex"), v.Bool(prefix+"body-regex-case")); err != nil {
		return rs, fmt.Errorf("%w: %sbody-regex: %s", ErrInvalidSetting, prefix, msgInvalidRegex)
	}
	rs.BodyLinkRequired = v.Bool(prefix + "body-link")
	rs.MinBodyLength = int(max(v.Int(prefix+"body-length"), 0))
	rs.FlairTexts = helpers.LowerStrings(helpers.SplitList(v.String(prefix+"flair-text"), ","))
	rs.FlairIDs = helpers.SplitList(v.String(prefix+"flair-ids"), ",")
	rs.UserFlairTexts = helpers.LowerStrings(helpers.SplitList(v.String(prefix+"user-flair-text"), ","))
	rs.UserFlairIDs = helpers.SplitList(v.String(prefix+"user-flair-ids"), ",")
	return rs, nil
}

// empty pattern means not configured. Patterns are case-insensitive unless caseSensitive is set.
func compile(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func minutes(n, def int64) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Minute
}

func commentOptions(l []string) actions.CommentOptions {
	return actions.CommentOptions{
		Distinguish: slices.Contains(l, "distinguish"),
		Sticky:      slices.Contains(l, "sticky"),
	}
}
