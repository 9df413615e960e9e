// Package hierarchy models a parent-linked tree of project directories and
// computes the root-first path to any node.
package hierarchy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Node is one level of a project hierarchy.
// Implementations must be comparable; pointer types are the usual choice.
type Node interface {
	// Dir returns the node's directory
	Dir() string

	// Parent returns the enclosing node, or nil at the root
	Parent() Node
}

// CycleError is returned when following parents revisits a node
type CycleError struct {
	Node Node
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("project hierarchy contains a cycle at %s", e.Node.Dir())
}

// AncestryPath returns the nodes from the root down to node, inclusive.
// A node without a parent yields a single-element path.
func AncestryPath(node Node) ([]Node, error) {
	if isNil(node) {
		return nil, fmt.Errorf("hierarchy: nil node")
	}

	// Collect leaf to root, then drain in reverse.
	visited := make(map[Node]struct{})
	var stack []Node
	for n := node; !isNil(n); n = n.Parent() {
		if _, seen := visited[n]; seen {
			return nil, &CycleError{Node: n}
		}
		visited[n] = struct{}{}
		stack = append(stack, n)
	}

	path := make([]Node, 0, len(stack))
	for len(stack) > 0 {
		last := len(stack) - 1
		path = append(path, stack[last])
		stack = stack[:last]
	}
	return path, nil
}

// isNil catches both a nil interface and a typed nil *Project
func isNil(n Node) bool {
	if n == nil {
		return true
	}
	p, ok := n.(*Project)
	return ok && p == nil
}

// Project is a concrete Node backed by a directory path
type Project struct {
	dir    string
	parent *Project
}

// NewProject creates a node for dir under parent; parent may be nil
func NewProject(dir string, parent *Project) *Project {
	return &Project{dir: dir, parent: parent}
}

// Child creates a node for dir whose parent is p
func (p *Project) Child(dir string) *Project {
	return NewProject(dir, p)
}

// Dir returns the project directory
func (p *Project) Dir() string {
	return p.dir
}

// Parent returns the parent project, or nil at the root
func (p *Project) Parent() Node {
	if p.parent == nil {
		return nil
	}
	return p.parent
}

// String implements fmt.Stringer
func (p *Project) String() string {
	return p.dir
}

// FromDirectory builds a chain of projects from leaf up to stop, inclusive.
// When stop is empty or not an ancestor of leaf the chain reaches the
// filesystem root. The returned node is the leaf.
func FromDirectory(leaf, stop string) (*Project, error) {
	leaf, err := filepath.Abs(leaf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", leaf, err)
	}
	if stop != "" {
		if stop, err = filepath.Abs(stop); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", stop, err)
		}
		if !isWithin(leaf, stop) {
			stop = ""
		}
	}

	// Walk upward collecting directories, closest first.
	var dirs []string
	cwd := leaf
	for {
		dirs = append(dirs, cwd)
		if cwd == stop {
			break
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	var node *Project
	for i := len(dirs) - 1; i >= 0; i-- {
		node = NewProject(dirs[i], node)
	}
	return node, nil
}

// FromWorkingDirectory is FromDirectory starting at the current directory
func FromWorkingDirectory(stop string) (*Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return FromDirectory(cwd, stop)
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
