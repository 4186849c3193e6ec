package settings

import (
	"regexp"
)

type ValueType string

const (
	TypeString      ValueType = "string"
	TypeBool        ValueType = "boolean"
	TypeNumber      ValueType = "number"
	TypeSelect      ValueType = "select"
	TypeMultiSelect ValueType = "multiselect"
)

// Describes a single moderator-facing setting.
type Definition struct {
	Key     string
	Type    ValueType
	Default any
	// allowed values, for select types
	Options []string
	// returns a human readable problem, or empty string if the value is acceptable. Only called with values of the correct type.
	Check func(v any) string
}

const (
	msgInvalidRegex        = "Invalid regex pattern."
	msgInvalidCommaList    = "Invalid format. Must be comma-separated list (e.g., \"Value1, Value2\")."
	msgInvalidBodyLength   = "Body length must be a positive number."
	msgInvalidReminder     = "Reminder delay must be a positive number."
	msgInvalidRemoveDelay  = "Reminder removal delay must be a positive number or 0."
	msgInvalidActionDelay  = "Action delay must be a positive number."
	msgInvalidSemicolonSet = "Invalid format. Values must be separated by semicolons (e.g. \"Value1; Value2\")."
)

var (
	commaListRegex     = regexp.MustCompile(`^[^,]+(,[^,]+)*$`)
	semicolonListRegex = regexp.MustCompile(`^([^;]+)(;[^;]+)*$`)
)

func checkRegex(v any) string {
	if _, err := regexp.Compile(v.(string)); err != nil {
		return msgInvalidRegex
	}
	return ""
}

func checkCommaList(v any) string {
	s := v.(string)
	if s != "" && !commaListRegex.MatchString(s) {
		return msgInvalidCommaList
	}
	return ""
}

func checkSemicolonList(v any) string {
	s := v.(string)
	if s != "" && !semicolonListRegex.MatchString(s) {
		return msgInvalidSemicolonSet
	}
	return ""
}

func checkMin(min int64, msg string) func(any) string {
	return func(v any) string {
		n := v.(int64)
		// zero means unset, and falls back to the default
		if n != 0 && n < min {
			return msg
		}
		return ""
	}
}

var modOptions = []string{"distinguish", "sticky"}

func listDefinitions(prefix string) []Definition {
	return []Definition{
		{Key: prefix + "title-regex", Type: TypeString, Default: "", Check: checkRegex},
		{Key: prefix + "title-regex-case", Type: TypeBool, Default: false},
		{Key: prefix + "body-regex", Type: TypeString, Default: "", Check: checkRegex},
		{Key: prefix + "body-regex-case", Type: TypeBool, Default: false},
		{Key: prefix + "body-link", Type: TypeBool, Default: false},
		{Key: prefix + "body-length", Type: TypeNumber, Default: int64(0), Check: checkMin(0, msgInvalidBodyLength)},
		{Key: prefix + "flair-text", Type: TypeString, Default: "", Check: checkCommaList},
		{Key: prefix + "flair-ids", Type: TypeString, Default: "", Check: checkCommaList},
		{Key: prefix + "user-flair-text", Type: TypeString, Default: "", Check: checkCommaList},
		{Key: prefix + "user-flair-ids", Type: TypeString, Default: "", Check: checkCommaList},
	}
}

// Every supported setting, in display order.
var Catalogue = buildCatalogue()

var byKey = func() map[string]*Definition {
	m := make(map[string]*Definition, len(Catalogue))
	for i := range Catalogue {
		m[Catalogue[i].Key] = &Catalogue[i]
	}
	return m
}()

func buildCatalogue() []Definition {
	defs := []Definition{
		{Key: "list-preference", Type: TypeSelect, Default: []string{"whitelist"}, Options: []string{"whitelist", "blacklist", "both", "none"}},
		{Key: "ignore-preference", Type: TypeMultiSelect, Default: []string{}, Options: []string{"removed", "reddit", "filtered"}},
	}
	defs = append(defs, listDefinitions("wl-")...)
	defs = append(defs, listDefinitions("bl-")...)
	defs = append(defs, []Definition{
		{Key: "comment-ignore-preference", Type: TypeSelect, Default: []string{"both"}, Options: []string{"none", "removed", "filtered", "both"}},
		{Key: "comment-level", Type: TypeBool, Default: false},
		{Key: "comment-author", Type: TypeBool, Default: false},
		{Key: "comment-user-ignore", Type: TypeString, Default: "AutoModerator", Check: checkCommaList},
		{Key: "accept-any-comment", Type: TypeBool, Default: false},
		{Key: "comment-body-regex", Type: TypeString, Default: "", Check: checkRegex},
		{Key: "comment-regex-case", Type: TypeBool, Default: false},
		{Key: "comment-body-link", Type: TypeBool, Default: false},

		{Key: "reminder-enable", Type: TypeBool, Default: false},
		{Key: "reminder-delay", Type: TypeNumber, Default: int64(5), Check: checkMin(1, msgInvalidReminder)},
		{Key: "reminder-remove-delay", Type: TypeNumber, Default: int64(0), Check: checkMin(0, msgInvalidRemoveDelay)},
		{Key: "reminder-message", Type: TypeString, Default: ""},
		{Key: "reminder-random", Type: TypeString, Default: "", Check: checkSemicolonList},
		{Key: "reminder-options", Type: TypeMultiSelect, Default: []string{}, Options: modOptions},

		{Key: "missing-link-action", Type: TypeSelect, Default: []string{"do_nothing"}, Options: []string{"do_nothing", "report", "flair", "remove"}},
		{Key: "missing-link-delay", Type: TypeNumber, Default: int64(10), Check: checkMin(1, msgInvalidActionDelay)},
		{Key: "report-reason", Type: TypeString, Default: ""},
		{Key: "change-flair-id", Type: TypeString, Default: ""},
		{Key: "removal-reason", Type: TypeString, Default: ""},
		{Key: "notify-user-via", Type: TypeSelect, Default: []string{"do_nothing"}, Options: []string{"do_nothing", "comment", "modmail"}},
		{Key: "action-notify-options", Type: TypeMultiSelect, Default: []string{}, Options: modOptions},
		{Key: "modmail-archive", Type: TypeBool, Default: false},
	}...)
	return defs
}

func Lookup(key string) (*Definition, bool) {
	d, ok := byKey[key]
	return d, ok
}
