package store

import (
	"path"
	"strings"
)

// Path addresses a node of the store tree. The root is the empty Path.
type Path []string

func NewPath(p string) Path {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return Path([]string{})
	}
	// "/rooms/abc/participants" -> ["rooms", "abc", "participants"]
	return Path(strings.Split(strings.TrimPrefix(cleaned, "/"), "/"))
}

func (p Path) Key() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return Path(p[:len(p)-1])
}

// Child extends p by relative paths; each argument may hold several
// slash-separated segments.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	for _, s := range segments {
		out = append(out, NewPath(s)...)
	}
	return out
}

// Append extends p by literal keys. Keys are never split or cleaned, so a
// key such as "a/b" or ".." names one child.
func (p Path) Append(keys ...string) Path {
	out := make(Path, 0, len(p)+len(keys))
	out = append(out, p...)
	return append(out, keys...)
}

func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// HasPrefix reports whether q is p itself or an ancestor of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	for i := range q {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether a write at p can change the value observed at q.
func (p Path) Overlaps(q Path) bool {
	return p.HasPrefix(q) || q.HasPrefix(p)
}
