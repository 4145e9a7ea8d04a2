package taxonomy

import (
	"fmt"
	"strings"

	"amari/pkg/domain"
)

// Policy selects how far up the ancestor chain ownership of an ingredient
// extends.
type Policy string

const (
	// PolicyFamily stops implication at the highest family in the chain.
	// Chains without a family fall back to the full root chain.
	PolicyFamily Policy = "family"
	// PolicyRoot extends implication to the root category.
	PolicyRoot Policy = "root"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = PolicyFamily

// ParsePolicy validates a configured policy name. Empty selects the default.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DefaultPolicy, nil
	case PolicyFamily:
		return PolicyFamily, nil
	case PolicyRoot:
		return PolicyRoot, nil
	default:
		return "", fmt.Errorf("unknown implication policy %q (want %q or %q)", raw, PolicyFamily, PolicyRoot)
	}
}

// Substitution is the neighbourhood of one node together with the set of
// ancestors that owning the node satisfies.
type Substitution struct {
	Self        string      `json:"self"`
	Kind        domain.Kind `json:"kind"`
	Parent      string      `json:"parent,omitempty"`
	Parents     []string    `json:"parents"`
	Children    []string    `json:"children"`
	Siblings    []string    `json:"siblings"`
	Implies     []string    `json:"implies"`
	ImpliesRoot string      `json:"implies_root"`
}

// SubstitutionResolver answers implication queries against one tree. The
// same resolver backs inventory expansion so both always agree.
type SubstitutionResolver struct {
	tree   *Tree
	policy Policy
}

// NewSubstitutionResolver binds a resolver to tree. An empty policy selects
// DefaultPolicy.
func NewSubstitutionResolver(tree *Tree, policy Policy) *SubstitutionResolver {
	if policy == "" {
		policy = DefaultPolicy
	}
	return &SubstitutionResolver{tree: tree, policy: policy}
}

// Tree returns the tree the resolver reads from.
func (r *SubstitutionResolver) Tree() *Tree {
	return r.tree
}

// Policy returns the active implication policy.
func (r *SubstitutionResolver) Policy() Policy {
	return r.policy
}

// Implies returns the ancestors implied by owning slug, nearest first, and
// the topmost node of that implication.
func (r *SubstitutionResolver) Implies(slug string) ([]string, string, error) {
	parents, err := r.tree.Parents(slug)
	if err != nil {
		return nil, "", err
	}
	chain := append([]string{slug}, parents...)
	top := len(chain) - 1

	if r.policy == PolicyFamily {
		for i := len(chain) - 1; i >= 0; i-- {
			if r.tree.nodes[chain[i]].Kind == domain.KindFamily {
				top = i
				break
			}
		}
	}

	implies := make([]string, 0, top)
	implies = append(implies, chain[1:top+1]...)
	return implies, chain[top], nil
}

// Substitutions returns the full substitution record for slug.
func (r *SubstitutionResolver) Substitutions(slug string) (Substitution, error) {
	node, err := r.tree.Node(slug)
	if err != nil {
		return Substitution{}, err
	}
	parents, err := r.tree.Parents(slug)
	if err != nil {
		return Substitution{}, err
	}
	children, err := r.tree.Children(slug)
	if err != nil {
		return Substitution{}, err
	}
	siblings, err := r.tree.Siblings(slug)
	if err != nil {
		return Substitution{}, err
	}
	implies, root, err := r.Implies(slug)
	if err != nil {
		return Substitution{}, err
	}
	return Substitution{
		Self:        slug,
		Kind:        node.Kind,
		Parent:      node.Parent,
		Parents:     parents,
		Children:    children,
		Siblings:    siblings,
		Implies:     implies,
		ImpliesRoot: root,
	}, nil
}
