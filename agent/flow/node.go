package flow

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Handler applies an action to the lead record and reports where the call goes next.
type Handler func(ctx context.Context, args Args, st *statex.Store) (Outcome, error)

// Outcome is the result of a handler. A nil Next keeps the current node.
type Outcome struct {
	Ack  string
	Next *Node
}

func Stay(ack string) Outcome {
	return Outcome{Ack: ack}
}

func Goto(ack string, next *Node) Outcome {
	return Outcome{Ack: ack, Next: next}
}

type Action struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler

	// Passive actions neither write the lead nor transition. The engine runs
	// them outside the dispatch lock so a slow lookup never blocks a turn.
	Passive bool
}

type PostAction string

const PostActionEndConversation PostAction = "end_conversation"

// Node is an immutable conversation state. Build it with NewNode.
type Node struct {
	Name               string
	RoleMessages       []string
	Instructions       string
	Actions            []Action
	PostActions        []PostAction
	RespondImmediately bool

	index map[string]int
}

// NewNode validates the definition and returns a frozen copy.
func NewNode(def Node) (*Node, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: node name is required", contractx.ErrNodeInvalid)
	}

	n := &Node{
		Name:               name,
		RoleMessages:       append([]string(nil), def.RoleMessages...),
		Instructions:       def.Instructions,
		Actions:            make([]Action, 0, len(def.Actions)),
		PostActions:        append([]PostAction(nil), def.PostActions...),
		RespondImmediately: def.RespondImmediately,
		index:              make(map[string]int, len(def.Actions)),
	}

	for _, action := range def.Actions {
		if err := validateAction(name, action); err != nil {
			return nil, err
		}
		if _, dup := n.index[action.Name]; dup {
			return nil, fmt.Errorf("%w: node=%s duplicate action=%s", contractx.ErrNodeInvalid, name, action.Name)
		}
		action.Params = append([]Param(nil), action.Params...)
		n.index[action.Name] = len(n.Actions)
		n.Actions = append(n.Actions, action)
	}

	for _, post := range n.PostActions {
		if post != PostActionEndConversation {
			return nil, fmt.Errorf("%w: node=%s unknown post action=%q", contractx.ErrNodeInvalid, name, post)
		}
	}

	return n, nil
}

// MustNode is NewNode for static definitions.
func MustNode(def Node) *Node {
	n, err := NewNode(def)
	if err != nil {
		panic(err)
	}
	return n
}

func validateAction(node string, action Action) error {
	if strings.TrimSpace(action.Name) == "" {
		return fmt.Errorf("%w: node=%s action name is required", contractx.ErrNodeInvalid, node)
	}
	if action.Handler == nil {
		return fmt.Errorf("%w: node=%s action=%s handler is required", contractx.ErrNodeInvalid, node, action.Name)
	}

	seen := make(map[string]struct{}, len(action.Params))
	for _, p := range action.Params {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: node=%s action=%s param name is required", contractx.ErrNodeInvalid, node, action.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: node=%s action=%s duplicate param=%s", contractx.ErrNodeInvalid, node, action.Name, p.Name)
		}
		seen[p.Name] = struct{}{}

		switch p.Type {
		case ParamString, ParamBoolean:
		default:
			return fmt.Errorf("%w: node=%s action=%s param=%s unknown type=%q", contractx.ErrNodeInvalid, node, action.Name, p.Name, p.Type)
		}
	}
	return nil
}

// Action looks up an action by name.
func (n *Node) Action(name string) (Action, bool) {
	if n == nil {
		return Action{}, false
	}
	i, ok := n.index[name]
	if !ok {
		return Action{}, false
	}
	return n.Actions[i], true
}

func (n *Node) HasPostAction(post PostAction) bool {
	if n == nil {
		return false
	}
	for _, p := range n.PostActions {
		if p == post {
			return true
		}
	}
	return false
}

// ActionNames returns the action names in declaration order.
func (n *Node) ActionNames() []string {
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.Actions))
	for _, a := range n.Actions {
		names = append(names, a.Name)
	}
	return names
}
