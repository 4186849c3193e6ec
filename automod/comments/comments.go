// Scans a post's reply tree for a comment satisfying a content requirement.
package comments

import (
	"regexp"
	"strings"

	"github.com/modwarden/warden/automod/helpers"
	"github.com/modwarden/warden/automod/platform"
)

// Which kinds of hidden comments are skipped during a scan.
type IgnorePolicy string

const (
	IgnoreNone     IgnorePolicy = "none"
	IgnoreRemoved  IgnorePolicy = "removed"
	IgnoreFiltered IgnorePolicy = "filtered"
	IgnoreBoth     IgnorePolicy = "both"
)

func (p IgnorePolicy) Valid() bool {
	switch p {
	case IgnoreNone, IgnoreRemoved, IgnoreFiltered, IgnoreBoth:
		return true
	}
	return false
}

func (p IgnorePolicy) ignoresRemoved() bool {
	return p == IgnoreRemoved || p == IgnoreBoth
}

func (p IgnorePolicy) ignoresFiltered() bool {
	return p == IgnoreFiltered || p == IgnoreBoth
}

type Requirement struct {
	// only direct replies to the post count
	TopLevelOnly bool
	// only comments by the post author count
	OPOnly bool
	// lower-cased author names
	IgnoredAuthors []string
	Pattern        *regexp.Regexp
	LinkRequired   bool
}

// Read-only index of a post's comments by parent.
type Tree struct {
	PostID       string
	PostAuthorID string
	nodes        map[string]*platform.Comment
	children     map[string][]string
	// comment IDs in input order, so orphans (parent not in the tree) can still be scanned
	order []string
}

func NewTree(postID, postAuthorID string, list []platform.Comment) *Tree {
	t := Tree{
		PostID:       postID,
		PostAuthorID: postAuthorID,
		nodes:        make(map[string]*platform.Comment, len(list)),
		children:     make(map[string][]string),
	}
	for i := range list {
		c := &list[i]
		if _, dupe := t.nodes[c.ID]; dupe {
			continue
		}
		t.nodes[c.ID] = c
		t.children[c.ParentID] = append(t.children[c.ParentID], c.ID)
		t.order = append(t.order, c.ID)
	}
	return &t
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Returns the first comment (in traversal order) which satisfies the requirement, or nil. Every node is visited at most once; traversal uses an explicit stack, so deep threads do not grow the call stack.
func (t *Tree) Find(req *Requirement, ignore IgnorePolicy, selfName string) *platform.Comment {
	visited := make(map[string]bool, len(t.nodes))
	stack := make([]string, 0, len(t.nodes))

	// roots are direct replies first, then anything whose parent is missing
	roots := append([]string{}, t.children[t.PostID]...)
	for _, id := range t.order {
		parent := t.nodes[id].ParentID
		if _, ok := t.nodes[parent]; !ok && parent != t.PostID {
			roots = append(roots, id)
		}
	}

	for _, root := range roots {
		stack = append(stack, root)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[id] {
				continue
			}
			visited[id] = true
			c := t.nodes[id]
			if t.counts(c, req, ignore, selfName) {
				return c
			}
			stack = append(stack, t.children[id]...)
		}
	}
	return nil
}

func (t *Tree) counts(c *platform.Comment, req *Requirement, ignore IgnorePolicy, selfName string) bool {
	if (c.Removed || c.Spam) && ignore.ignoresRemoved() {
		return false
	}
	if c.FilteredAt != nil && ignore.ignoresFiltered() {
		return false
	}
	if selfName != "" && c.AuthorName == selfName {
		return false
	}
	lower := strings.ToLower(c.AuthorName)
	for _, name := range req.IgnoredAuthors {
		if name == lower {
			return false
		}
	}
	if req.OPOnly && (c.AuthorID == "" || c.AuthorID != t.PostAuthorID) {
		return false
	}
	if req.TopLevelOnly && c.ParentID != t.PostID {
		return false
	}
	if req.Pattern != nil && !req.Pattern.MatchString(c.Body) {
		return false
	}
	if req.LinkRequired && !helpers.ContainsLink(c.Body) {
		return false
	}
	return true
}

// Whether any comment in the tree satisfies the requirement.
func Scan(t *Tree, req *Requirement, ignore IgnorePolicy, selfName string) bool {
	return t.Find(req, ignore, selfName) != nil
}
