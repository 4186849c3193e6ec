package bridge

import (
	"context"

	"github.com/modwarden/warden/automod/platform"
)

func (c *Client) GetPost(ctx context.Context, id string) (*platform.Post, error) {
	var out platform.Post
	if err := c.Do(ctx, Query, "getPost", map[string]string{"id": id}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetComment(ctx context.Context, id string) (*platform.Comment, error) {
	var out platform.Comment
	if err := c.Do(ctx, Query, "getComment", map[string]string{"id": id}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type commentTreeOutput struct {
	Comments []platform.Comment `json:"comments"`
}

func (c *Client) GetCommentTree(ctx context.Context, postID string) ([]platform.Comment, error) {
	var out commentTreeOutput
	if err := c.Do(ctx, Query, "getCommentTree", map[string]string{"postId": postID}, nil, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

type flairTemplatesOutput struct {
	Templates []platform.FlairTemplate `json:"templates"`
}

func (c *Client) GetPostFlairTemplates(ctx context.Context, subreddit string) ([]platform.FlairTemplate, error) {
	var out flairTemplatesOutput
	if err := c.Do(ctx, Query, "getPostFlairTemplates", map[string]string{"subreddit": subreddit}, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

type removalReasonsOutput struct {
	Reasons []platform.RemovalReason `json:"reasons"`
}

func (c *Client) GetRemovalReasons(ctx context.Context, subreddit string) ([]platform.RemovalReason, error) {
	var out removalReasonsOutput
	if err := c.Do(ctx, Query, "getRemovalReasons", map[string]string{"subreddit": subreddit}, nil, &out); err != nil {
		return nil, err
	}
	return out.Reasons, nil
}

type userFlairOutput struct {
	Flair *platform.UserFlair `json:"flair"`
}

func (c *Client) GetUserFlair(ctx context.Context, subreddit, username string) (*platform.UserFlair, error) {
	var out userFlairOutput
	if err := c.Do(ctx, Query, "getUserFlair", map[string]string{"subreddit": subreddit, "username": username}, nil, &out); err != nil {
		return nil, err
	}
	return out.Flair, nil
}

func (c *Client) GetCurrentSubreddit(ctx context.Context) (*platform.Subreddit, error) {
	var out platform.Subreddit
	if err := c.Do(ctx, Query, "getCurrentSubreddit", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type setPostFlairInput struct {
	Subreddit  string `json:"subreddit"`
	PostID     string `json:"postId"`
	TemplateID string `json:"templateId"`
}

func (c *Client) SetPostFlair(ctx context.Context, subreddit, postID, templateID string) error {
	return c.Do(ctx, Procedure, "setPostFlair", nil, setPostFlairInput{
		Subreddit:  subreddit,
		PostID:     postID,
		TemplateID: templateID,
	}, nil)
}

type idInput struct {
	ID string `json:"id"`
}

func (c *Client) RemovePost(ctx context.Context, id string) error {
	return c.Do(ctx, Procedure, "removePost", nil, idInput{ID: id}, nil)
}

func (c *Client) RemoveComment(ctx context.Context, id string) error {
	return c.Do(ctx, Procedure, "removeComment", nil, idInput{ID: id}, nil)
}

type addCommentInput struct {
	ParentID string `json:"parentId"`
	Text     string `json:"text"`
}

func (c *Client) AddComment(ctx context.Context, parentID, text string) (*platform.Comment, error) {
	var out platform.Comment
	if err := c.Do(ctx, Procedure, "addComment", nil, addCommentInput{ParentID: parentID, Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LockComment(ctx context.Context, id string) error {
	return c.Do(ctx, Procedure, "lockComment", nil, idInput{ID: id}, nil)
}

type distinguishInput struct {
	ID     string `json:"id"`
	Sticky bool   `json:"sticky"`
}

func (c *Client) DistinguishComment(ctx context.Context, id string, sticky bool) error {
	return c.Do(ctx, Procedure, "distinguishComment", nil, distinguishInput{ID: id, Sticky: sticky}, nil)
}

type removalNoteInput struct {
	ID       string `json:"id"`
	ReasonID string `json:"reasonId"`
	Note     string `json:"modNote"`
}

func (c *Client) AddRemovalNote(ctx context.Context, id, reasonID, note string) error {
	return c.Do(ctx, Procedure, "addRemovalNote", nil, removalNoteInput{ID: id, ReasonID: reasonID, Note: note}, nil)
}

type reportInput struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (c *Client) Report(ctx context.Context, id, reason string) error {
	return c.Do(ctx, Procedure, "report", nil, reportInput{ID: id, Reason: reason}, nil)
}

type modmailOutput struct {
	ConversationID string `json:"conversationId"`
}

func (c *Client) CreateModmail(ctx context.Context, conv platform.ModmailConversation) (string, error) {
	var out modmailOutput
	if err := c.Do(ctx, Procedure, "createModmail", nil, conv, &out); err != nil {
		return "", err
	}
	return out.ConversationID, nil
}

func (c *Client) ArchiveModmail(ctx context.Context, id string) error {
	return c.Do(ctx, Procedure, "archiveModmail", nil, idInput{ID: id}, nil)
}
