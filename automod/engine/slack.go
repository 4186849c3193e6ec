package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modwarden/warden/automod/actions"
	"github.com/modwarden/warden/automod/platform"
)

type SlackNotifier struct {
	SlackWebhookURL string
	// defaults to http.DefaultClient
	Client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendAction(ctx context.Context, post *platform.Post, res *actions.Result) error {
	err := n.sendSlackMsg(ctx, slackBody(post, res))
	if err != nil {
		notificationCount.WithLabelValues("error").Inc()
		return err
	}
	notificationCount.WithLabelValues("ok").Inc()
	return nil
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(post *platform.Post, res *actions.Result) string {
	msg := "⚠️ Warden Action ⚠️\n"
	msg += fmt.Sprintf("`%s` in r/%s by u/%s\n", post.ID, post.SubredditName, post.AuthorName)
	if post.Permalink != "" {
		msg += fmt.Sprintf("<%s|%s>\n", post.Permalink, post.Title)
	}
	switch {
	case res.Fallback:
		msg += fmt.Sprintf("Reported instead of acting: `%s`\n", res.ReportReason)
	case res.Outcome == actions.OutcomeRemoved:
		msg += "Removed!\n"
	default:
		msg += fmt.Sprintf("Outcome: `%s`\n", res.Outcome)
	}
	return msg
}
