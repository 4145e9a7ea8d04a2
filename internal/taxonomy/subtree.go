package taxonomy

import "amari/pkg/domain"

// SubtreeNode is a detached, nested copy of part of the tree. Children is keyed
// by slug so consumers get O(1) lookup and no ordering ambiguity.
type SubtreeNode struct {
	domain.IngredientNode `yaml:",inline"`
	Children              map[string]*SubtreeNode `json:"children" yaml:"children"`
}

// Subtree returns the node at slug together with all of its descendants.
// The result shares no memory with the tree.
func (t *Tree) Subtree(slug string) (*SubtreeNode, error) {
	if !t.Contains(slug) {
		return nil, notFound(slug)
	}
	return t.subtree(slug), nil
}

func (t *Tree) subtree(slug string) *SubtreeNode {
	kids := t.children[slug]
	node := &SubtreeNode{
		IngredientNode: t.nodes[slug].Clone(),
		Children:       make(map[string]*SubtreeNode, len(kids)),
	}
	for _, child := range kids {
		node.Children[child] = t.subtree(child)
	}
	return node
}

// Forest returns the whole tree keyed by root category slug.
func (t *Tree) Forest() map[string]*SubtreeNode {
	out := make(map[string]*SubtreeNode, len(t.roots))
	for _, root := range t.roots {
		out[root] = t.subtree(root)
	}
	return out
}

// Slugs returns every slug contained in the subtree, including its root.
func (n *SubtreeNode) Slugs() []string {
	if n == nil {
		return nil
	}
	out := []string{n.Slug}
	for _, child := range n.Children {
		out = append(out, child.Slugs()...)
	}
	return out
}
