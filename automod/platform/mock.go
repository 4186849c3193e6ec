package platform

import (
	"context"
	"fmt"
	"sync"
)

type Report struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type RemovalNote struct {
	ID       string `json:"id"`
	ReasonID string `json:"reasonId"`
	Note     string `json:"note"`
}

// A fake platform, for use in tests and offline replay. Mutations are applied to the in-memory state and also recorded, so tests can assert on exactly what the engine did.
type MockPlatform struct {
	mu *sync.RWMutex

	// username used as the author of comments created through AddComment
	BotName        string
	Subreddit      Subreddit
	Posts          map[string]Post
	Comments       map[string]Comment
	FlairTemplates []FlairTemplate
	RemovalReasons []RemovalReason
	// keyed by username
	UserFlairs map[string]UserFlair

	// method name to error; a method with an entry fails with that error (once set, fails every call)
	Errors map[string]error

	Reports        []Report
	RemovalNotes   []RemovalNote
	Modmails       []ModmailConversation
	ArchivedMail   []string
	RemovedPosts   []string
	RemovedComment []string
	FlairChanges   []string

	nextID int
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform(subreddit string) MockPlatform {
	return MockPlatform{
		mu:         &sync.RWMutex{},
		BotName:    "warden-bot",
		Subreddit:  Subreddit{Name: subreddit},
		Posts:      make(map[string]Post),
		Comments:   make(map[string]Comment),
		UserFlairs: make(map[string]UserFlair),
		Errors:     make(map[string]error),
	}
}

func (p *MockPlatform) InsertPost(post Post) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if post.SubredditName == "" {
		post.SubredditName = p.Subreddit.Name
	}
	p.Posts[post.ID] = post
}

func (p *MockPlatform) InsertComment(c Comment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Comments[c.ID] = c
}

func (p *MockPlatform) fail(method string) error {
	if err, ok := p.Errors[method]; ok {
		return err
	}
	return nil
}

func (p *MockPlatform) GetPost(ctx context.Context, id string) (*Post, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetPost"); err != nil {
		return nil, err
	}
	post, ok := p.Posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	return &post, nil
}

func (p *MockPlatform) GetComment(ctx context.Context, id string) (*Comment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetComment"); err != nil {
		return nil, err
	}
	c, ok := p.Comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (p *MockPlatform) GetCommentTree(ctx context.Context, postID string) ([]Comment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetCommentTree"); err != nil {
		return nil, err
	}
	out := []Comment{}
	for _, c := range p.Comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *MockPlatform) GetPostFlairTemplates(ctx context.Context, subreddit string) ([]FlairTemplate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetPostFlairTemplates"); err != nil {
		return nil, err
	}
	return append([]FlairTemplate{}, p.FlairTemplates...), nil
}

func (p *MockPlatform) GetRemovalReasons(ctx context.Context, subreddit string) ([]RemovalReason, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetRemovalReasons"); err != nil {
		return nil, err
	}
	return append([]RemovalReason{}, p.RemovalReasons...), nil
}

func (p *MockPlatform) GetUserFlair(ctx context.Context, subreddit, username string) (*UserFlair, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetUserFlair"); err != nil {
		return nil, err
	}
	f, ok := p.UserFlairs[username]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (p *MockPlatform) GetCurrentSubreddit(ctx context.Context) (*Subreddit, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.fail("GetCurrentSubreddit"); err != nil {
		return nil, err
	}
	s := p.Subreddit
	return &s, nil
}

func (p *MockPlatform) SetPostFlair(ctx context.Context, subreddit, postID, templateID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("SetPostFlair"); err != nil {
		return err
	}
	post, ok := p.Posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	post.FlairTemplateID = templateID
	for _, tmpl := range p.FlairTemplates {
		if tmpl.ID == templateID {
			post.FlairText = tmpl.Text
		}
	}
	p.Posts[postID] = post
	p.FlairChanges = append(p.FlairChanges, postID+"="+templateID)
	return nil
}

func (p *MockPlatform) RemovePost(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("RemovePost"); err != nil {
		return err
	}
	post, ok := p.Posts[id]
	if !ok {
		return fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	post.RemovedBy = RemovedModerator
	p.Posts[id] = post
	p.RemovedPosts = append(p.RemovedPosts, id)
	return nil
}

func (p *MockPlatform) RemoveComment(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("RemoveComment"); err != nil {
		return err
	}
	c, ok := p.Comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	c.Removed = true
	p.Comments[id] = c
	p.RemovedComment = append(p.RemovedComment, id)
	return nil
}

func (p *MockPlatform) AddComment(ctx context.Context, parentID, text string) (*Comment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("AddComment"); err != nil {
		return nil, err
	}
	postID := parentID
	if parent, ok := p.Comments[parentID]; ok {
		postID = parent.PostID
	} else if _, ok := p.Posts[parentID]; !ok {
		return nil, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	p.nextID++
	c := Comment{
		ID:         fmt.Sprintf("t1_mock%d", p.nextID),
		PostID:     postID,
		ParentID:   parentID,
		AuthorID:   "t2_" + p.BotName,
		AuthorName: p.BotName,
		Body:       text,
	}
	p.Comments[c.ID] = c
	return &c, nil
}

func (p *MockPlatform) LockComment(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("LockComment"); err != nil {
		return err
	}
	c, ok := p.Comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	c.Locked = true
	p.Comments[id] = c
	return nil
}

func (p *MockPlatform) DistinguishComment(ctx context.Context, id string, sticky bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("DistinguishComment"); err != nil {
		return err
	}
	c, ok := p.Comments[id]
	if !ok {
		return fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	c.Distinguished = "moderator"
	c.Stickied = sticky
	p.Comments[id] = c
	return nil
}

func (p *MockPlatform) AddRemovalNote(ctx context.Context, id, reasonID, note string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("AddRemovalNote"); err != nil {
		return err
	}
	p.RemovalNotes = append(p.RemovalNotes, RemovalNote{ID: id, ReasonID: reasonID, Note: note})
	return nil
}

func (p *MockPlatform) Report(ctx context.Context, id, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("Report"); err != nil {
		return err
	}
	p.Reports = append(p.Reports, Report{ID: id, Reason: reason})
	return nil
}

func (p *MockPlatform) CreateModmail(ctx context.Context, conv ModmailConversation) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("CreateModmail"); err != nil {
		return "", err
	}
	p.Modmails = append(p.Modmails, conv)
	return fmt.Sprintf("modmail%d", len(p.Modmails)), nil
}

func (p *MockPlatform) ArchiveModmail(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("ArchiveModmail"); err != nil {
		return err
	}
	p.ArchivedMail = append(p.ArchivedMail, id)
	return nil
}
