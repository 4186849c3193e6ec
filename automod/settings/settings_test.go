package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/comments"
	"github.com/modwarden/warden/automod/rules"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		key string
		val any
		msg string
	}{
		{key: "wl-title-regex", val: `^\[Discussion\]`},
		{key: "wl-title-regex", val: `(unclosed`, msg: "Invalid regex pattern."},
		{key: "bl-flair-text", val: "Meta, Discussion"},
		{key: "bl-flair-text", val: "Meta,,Discussion", msg: "Invalid format. Must be comma-separated list"},
		{key: "wl-body-length", val: float64(-1), msg: "Body length must be a positive number."},
		{key: "wl-body-length", val: 1.5, msg: "not a whole number"},
		{key: "reminder-delay", val: "-3", msg: "Reminder delay must be a positive number."},
		{key: "reminder-delay", val: 15},
		{key: "reminder-remove-delay", val: -1, msg: "Reminder removal delay must be a positive number or 0."},
		{key: "reminder-remove-delay", val: 0},
		{key: "missing-link-delay", val: -5, msg: "Action delay must be a positive number."},
		{key: "reminder-random", val: "one; two;three"},
		{key: "reminder-random", val: "one;;two", msg: "Values must be separated by semicolons"},
		{key: "list-preference", val: []any{"blacklist"}},
		{key: "list-preference", val: "whitelist,blacklist", msg: "only one option"},
		{key: "list-preference", val: "sometimes", msg: "unknown option"},
		{key: "ignore-preference", val: []string{"removed", "filtered"}},
		{key: "reminder-enable", val: "yes", msg: "not a boolean"},
		{key: "no-such-key", val: "x", msg: "unknown setting"},
	}

	for _, fix := range fixtures {
		err := Validate(fix.key, fix.val)
		if fix.msg == "" {
			assert.NoError(err, fix.key)
			continue
		}
		assert.ErrorIs(err, ErrInvalidSetting, fix.key)
		assert.ErrorContains(err, fix.msg, fix.key)
	}
}

func TestParseDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(Values{})
	assert.NoError(err)
	assert.Equal(rules.Whitelist, cfg.Policy.List)
	assert.Equal(rules.PostIgnore{}, cfg.Policy.Ignore)
	assert.True(cfg.Policy.Whitelist.Empty())
	assert.True(cfg.Policy.Blacklist.Empty())
	assert.Equal(comments.IgnoreBoth, cfg.CommentIgnore)
	assert.True(cfg.Comments.TopLevelOnly)
	assert.True(cfg.Comments.OPOnly)
	assert.Equal([]string{"automoderator"}, cfg.Comments.IgnoredAuthors)
	assert.Nil(cfg.Comments.Pattern)
	assert.False(cfg.Reminder.Enabled)
	assert.Equal(5*time.Minute, cfg.Reminder.Delay)
	assert.Equal(time.Duration(0), cfg.Reminder.RemoveDelay)
	assert.Equal(actions.DoNothing, cfg.Action.Kind)
	assert.Equal(actions.NotifyNone, cfg.Action.NotifyVia)
	assert.Equal(10*time.Minute, cfg.Action.Delay)
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(Values{
		"list-preference":       "both",
		"ignore-preference":     []any{"removed", "reddit"},
		"wl-title-regex":        `^\[Discussion\]`,
		"bl-body-regex":         `Spoiler`,
		"bl-body-regex-case":    true,
		"wl-flair-text":         "Needs Source, QUESTION",
		"wl-flair-ids":          "AbC, def",
		"comment-level":         true,
		"comment-user-ignore":   "AutoModerator, SomeBot",
		"comment-body-regex":    `source`,
		"comment-body-link":     true,
		"reminder-enable":       true,
		"reminder-delay":        float64(15),
		"reminder-remove-delay": "30",
		"reminder-message":      "Hi {{author}}, {{random}}",
		"reminder-random":       "please add a source; sources please",
		"reminder-options":      []any{"distinguish", "sticky"},
		"missing-link-action":   []any{"remove"},
		"removal-reason":        "No source",
		"notify-user-via":       "modmail",
		"modmail-archive":       true,
	})
	assert.NoError(err)

	assert.Equal(rules.Both, cfg.Policy.List)
	assert.Equal(rules.PostIgnore{Removed: true, Platform: true}, cfg.Policy.Ignore)
	assert.True(cfg.Policy.Whitelist.Title.MatchString("[discussion] weekly"))
	assert.True(cfg.Policy.Blacklist.Body.MatchString("Spoiler ahead"))
	assert.False(cfg.Policy.Blacklist.Body.MatchString("spoiler ahead"))
	assert.Equal([]string{"needs source", "question"}, cfg.Policy.Whitelist.FlairTexts)
	assert.Equal([]string{"AbC", "def"}, cfg.Policy.Whitelist.FlairIDs)

	assert.False(cfg.Comments.TopLevelOnly)
	assert.True(cfg.Comments.OPOnly)
	assert.Equal([]string{"automoderator", "somebot"}, cfg.Comments.IgnoredAuthors)
	assert.True(cfg.Comments.Pattern.MatchString("SOURCE: x"))
	assert.True(cfg.Comments.LinkRequired)

	assert.True(cfg.Reminder.Enabled)
	assert.Equal(15*time.Minute, cfg.Reminder.Delay)
	assert.Equal(30*time.Minute, cfg.Reminder.RemoveDelay)
	assert.Equal([]string{"please add a source", "sources please"}, cfg.Reminder.RandomValues)
	assert.Equal(actions.CommentOptions{Distinguish: true, Sticky: true}, cfg.Reminder.Options)

	assert.Equal(actions.Remove, cfg.Action.Kind)
	assert.Equal(actions.NotifyModmail, cfg.Action.NotifyVia)
	assert.True(cfg.Action.ArchiveModmail)
}

func TestParseAcceptAnyComment(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse(Values{
		"accept-any-comment": true,
		"comment-body-regex": `source`,
		"comment-body-link":  true,
	})
	assert.NoError(err)
	assert.Nil(cfg.Comments.Pattern)
	assert.False(cfg.Comments.LinkRequired)
}

func TestParseInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := Parse(Values{"wl-title-regex": "(", "reminder-delay": -1})
	assert.ErrorIs(err, ErrInvalidSetting)
	assert.ErrorContains(err, "wl-title-regex")
	assert.ErrorContains(err, "reminder-delay")
}

func TestValuesRoundTrip(t *testing.T) {
	assert := assert.New(t)

	// task payloads store values as JSON; decoding yields float64 and []any
	orig := Values{"reminder-delay": int64(15), "reminder-options": []string{"sticky"}, "wl-body-link": true}
	b, err := json.Marshal(orig)
	assert.NoError(err)
	var decoded Values
	assert.NoError(json.Unmarshal(b, &decoded))

	cfg, err := Parse(decoded)
	assert.NoError(err)
	assert.Equal(15*time.Minute, cfg.Reminder.Delay)
	assert.True(cfg.Reminder.Options.Sticky)
	assert.True(cfg.Policy.Whitelist.BodyLinkRequired)
}

func testStoreBasics(t *testing.T, store Store) {
	assert := assert.New(t)
	ctx := context.Background()

	vals, err := store.Get(ctx)
	assert.NoError(err)
	assert.Empty(vals)

	assert.NoError(store.Set(ctx, "reminder-delay", "20"))
	assert.NoError(store.Set(ctx, "list-preference", "blacklist"))
	err = store.Set(ctx, "wl-title-regex", "(")
	assert.ErrorIs(err, ErrInvalidSetting)

	vals, err = store.Get(ctx)
	assert.NoError(err)
	assert.Equal(2, len(vals))
	assert.Equal(int64(20), vals.Int("reminder-delay"))
	assert.Equal("blacklist", vals.Select("list-preference"))

	assert.NoError(store.Set(ctx, "reminder-delay", 25))
	vals, cfg, err := Load(ctx, store)
	assert.NoError(err)
	assert.Equal(int64(25), vals.Int("reminder-delay"))
	assert.Equal("AutoModerator", vals.String("comment-user-ignore"))
	assert.Equal(25*time.Minute, cfg.Reminder.Delay)
	assert.Equal(rules.Blacklist, cfg.Policy.List)

	assert.Error(Import(ctx, store, Values{"reminder-enable": true, "reminder-delay": 0.5}))
	vals, err = store.Get(ctx)
	assert.NoError(err)
	assert.False(vals.Bool("reminder-enable"))
	assert.NoError(Import(ctx, store, Values{"reminder-enable": true}))
	vals, err = store.Get(ctx)
	assert.NoError(err)
	assert.True(vals.Bool("reminder-enable"))
}

func TestMemStore(t *testing.T) {
	testStoreBasics(t, NewMemStore())
}

func TestGormStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	// every connection to ":memory:" is a separate database
	sqldb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqldb.SetMaxOpenConns(1)
	store, err := NewGormStore(db, "gardening")
	if err != nil {
		t.Fatal(err)
	}
	testStoreBasics(t, store)
}

func TestRedisStore(t *testing.T) {
	t.Skip("live test, need redis running locally")

	store, err := NewRedisStore("redis://localhost:6379/0", "warden-test")
	if err != nil {
		t.Fatal(err)
	}
	store.Client.Del(context.Background(), store.key())
	testStoreBasics(t, store)
}
