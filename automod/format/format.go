// Template substitution for outbound moderator text: reminder comments, removal comments, and removal modmail.
package format

import (
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/modwarden/warden/automod/platform"
)

const (
	RandomPlaceholder = "{{random}}"

	commentFooter = "\n\n---\n*I am a bot, and this action was performed automatically. Please [contact the moderators of this subreddit](https://www.reddit.com/message/compose/?to=/r/%s) if you have any questions or concerns.*"
	mailFooter    = "\n\n---\n*This action was performed automatically. Please respond to this message if you have any questions or concerns.*"
)

// Live values a message is rendered from. Subreddit and AuthorFlair may be nil, in which case their placeholders render empty.
type Data struct {
	Post        *platform.Post
	Subreddit   *platform.Subreddit
	AuthorFlair *platform.UserFlair
}

// overridable for tests
var pickRandom = rand.IntN

// Renders a comment template. If the template includes the random placeholder and the pool is non-empty, one value is picked uniformly and used for every occurrence. The bot disclosure footer is always appended.
func Message(tmpl string, pool []string, d *Data) string {
	if strings.Contains(tmpl, RandomPlaceholder) && len(pool) > 0 {
		tmpl = strings.ReplaceAll(tmpl, RandomPlaceholder, pool[pickRandom(len(pool))])
	}

	post := d.post()
	var flairText, flairCSS string
	if d.AuthorFlair != nil {
		flairText = d.AuthorFlair.Text
		flairCSS = d.AuthorFlair.CSSClass
	}
	var subName string
	if d.Subreddit != nil {
		subName = d.Subreddit.Name
	}

	r := strings.NewReplacer(append([]string{
		"{{author}}", post.AuthorName,
		"{{author_flair_text}}", flairText,
		"{{author_flair_css_class}}", flairCSS,
		"{{author_flair_template_id}}", "",
		"{{body}}", post.Body,
		"{{permalink}}", post.Permalink,
		"{{subreddit}}", subName,
		"{{kind}}", "submission",
		"{{title}}", post.Title,
		"{{domain}}", Domain(post.URL),
		"{{url}}", post.URL,
		"{{media_author}}", "",
		"{{media_author_url}}", "",
		"{{media_title}}", "",
		"{{media_description}}", "",
	}, d.communityPairs()...)...)

	return r.Replace(tmpl) + strings.Replace(commentFooter, "%s", post.SubredditName, 1)
}

// Subject and body of the modmail sent to a post author after removal.
func RemovalMail(d *Data, reason *platform.RemovalReason) (string, string) {
	post := d.post()
	msg := strings.NewReplacer(d.communityPairs()...).Replace(reason.Message)

	subject := "Your post from " + post.SubredditName + " was removed"
	var b strings.Builder
	b.WriteString("Your post from " + post.SubredditName + " was removed because of: '" + reason.Title + "'")
	b.WriteString("\n\n")
	b.WriteString("Hi u/" + post.AuthorName + ", " + msg)
	b.WriteString("\n\n")
	b.WriteString("Original post: " + post.Permalink)
	b.WriteString(mailFooter)
	return subject, b.String()
}

// Hostname of a URL, or empty string if it does not parse.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (d *Data) post() *platform.Post {
	if d.Post == nil {
		return &platform.Post{}
	}
	return d.Post
}

func (d *Data) communityPairs() []string {
	sub := d.post().SubredditName
	var desc string
	if d.Subreddit != nil {
		desc = d.Subreddit.Description
	}
	return []string{
		"{community_name}", sub,
		"{community_link}", "r/" + sub,
		"{community_description}", desc,
		"{community_rules_url}", "https://www.reddit.com/r/" + sub + "/about/rules",
	}
}
