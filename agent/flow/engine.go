package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
)

// Presenter is the transport side of the engine. Present pushes a node's
// instructions and tools out; Terminate ends the call.
type Presenter interface {
	Present(ctx context.Context, node *Node) error
	Terminate(ctx context.Context) error
}

// ErrPresent reports a transition the presenter refused. The engine stays on
// the node the action ran on.
var ErrPresent = errors.New("present node failed")

type Hooks struct {
	OnNodeEnter func(node string)
	OnDispatch  func(node, action string, err error, elapsed time.Duration)
}

type Result struct {
	Ack          string
	Node         string
	Transitioned bool
	Ended        bool
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithHooks(hooks Hooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// Engine runs one conversation. Dispatches are serialized; passive actions
// are the only ones allowed to overlap.
type Engine struct {
	store     *statex.Store
	presenter Presenter
	logger    zerolog.Logger
	hooks     Hooks

	dispatchMu sync.Mutex

	mu      sync.RWMutex
	current *Node
	ended   bool
}

func New(store *statex.Store, presenter Presenter, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if presenter == nil {
		return nil, errors.New("presenter is required")
	}

	e := &Engine{
		store:     store,
		presenter: presenter,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Initialize installs the first node and presents it.
func (e *Engine) Initialize(ctx context.Context, node *Node) error {
	if node == nil {
		return fmt.Errorf("%w: initial node is nil", contractx.ErrNodeInvalid)
	}

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	e.mu.Lock()
	e.current = node
	e.ended = false
	e.mu.Unlock()

	return e.enter(ctx, node)
}

func (e *Engine) Current() *Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Engine) Ended() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ended
}

func (e *Engine) Store() *statex.Store {
	return e.store
}

// Dispatch runs the named action of the current node. An unknown action is
// rejected with contract.ErrUnknownAction and leaves node and lead untouched.
func (e *Engine) Dispatch(ctx context.Context, name string, args Args) (Result, error) {
	node, action, err := e.lookup(name)
	if err != nil {
		e.observe(node, name, err, 0)
		return Result{Node: nodeName(node)}, err
	}
	if args == nil {
		args = Args{}
	}

	if action.Passive {
		return e.dispatchPassive(ctx, node, action, args)
	}

	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	// The node may have moved while we waited for the lock.
	node, action, err = e.lookup(name)
	if err != nil {
		e.observe(node, name, err, 0)
		return Result{Node: nodeName(node)}, err
	}

	started := time.Now()
	outcome, err := action.Handler(ctx, args, e.store)
	elapsed := time.Since(started)
	e.observe(node, name, err, elapsed)
	if err != nil {
		return Result{Node: node.Name}, fmt.Errorf("action %s: %w", name, err)
	}

	result := Result{Ack: outcome.Ack, Node: node.Name}
	if outcome.Next != nil {
		// A node the transport never saw must not become current: the model
		// would still hold the previous node's tools. The lead keeps the
		// handler's writes.
		if err := e.enter(ctx, outcome.Next); err != nil {
			e.logger.Error().Err(err).Str("from", node.Name).Str("to", outcome.Next.Name).Msg("present node failed")
			return result, fmt.Errorf("action %s: %w: node=%s: %v", name, ErrPresent, outcome.Next.Name, err)
		}
		e.mu.Lock()
		e.current = outcome.Next
		e.mu.Unlock()

		result.Node = outcome.Next.Name
		result.Transitioned = true
		e.logger.Info().
			Str("from", node.Name).
			Str("to", outcome.Next.Name).
			Str("action", name).
			Msg("flow transition")
	}

	if node.HasPostAction(PostActionEndConversation) {
		e.mu.Lock()
		e.ended = true
		e.mu.Unlock()
		result.Ended = true

		if err := e.presenter.Terminate(ctx); err != nil {
			e.logger.Error().Err(err).Str("node", node.Name).Msg("terminate call failed")
		}
	}

	return result, nil
}

func (e *Engine) dispatchPassive(ctx context.Context, node *Node, action Action, args Args) (Result, error) {
	started := time.Now()
	outcome, err := action.Handler(ctx, args, e.store)
	e.observe(node, action.Name, err, time.Since(started))
	if err != nil {
		return Result{Node: node.Name}, fmt.Errorf("action %s: %w", action.Name, err)
	}
	if outcome.Next != nil {
		e.logger.Warn().Str("node", node.Name).Str("action", action.Name).Msg("passive action requested a transition; ignored")
	}
	return Result{Ack: outcome.Ack, Node: node.Name}, nil
}

func (e *Engine) lookup(name string) (*Node, Action, error) {
	e.mu.RLock()
	node, ended := e.current, e.ended
	e.mu.RUnlock()

	if node == nil {
		return nil, Action{}, fmt.Errorf("%w: engine is not initialized", contractx.ErrNodeInvalid)
	}
	if ended {
		return node, Action{}, contractx.ErrSessionEnded
	}
	action, ok := node.Action(name)
	if !ok {
		return node, Action{}, fmt.Errorf("%w: node=%s action=%s", contractx.ErrUnknownAction, node.Name, name)
	}
	return node, action, nil
}

func (e *Engine) enter(ctx context.Context, node *Node) error {
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(node.Name)
	}
	return e.presenter.Present(ctx, node)
}

func (e *Engine) observe(node *Node, action string, err error, elapsed time.Duration) {
	if err != nil {
		e.logger.Warn().Err(err).Str("node", nodeName(node)).Str("action", action).Msg("dispatch failed")
	}
	if e.hooks.OnDispatch != nil {
		e.hooks.OnDispatch(nodeName(node), action, err, elapsed)
	}
}

func nodeName(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Name
}
