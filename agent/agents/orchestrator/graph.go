package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

func (o *Orchestrator) compileDialGraph(
	ctx context.Context,
) (compose.Runnable[DialInput, *Call], error) {
	graph := compose.NewGraph[DialInput, *Call]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in DialInput) (*DialState, error) {
			return ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("open_conversation",
		compose.InvokableLambda(func(ctx context.Context, in *DialState) (*DialState, error) {
			return o.openConversation(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node open_conversation: %w", err)
	}

	if err := graph.AddLambdaNode("start_session",
		compose.InvokableLambda(func(ctx context.Context, in *DialState) (*DialState, error) {
			return o.startSession(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node start_session: %w", err)
	}

	if err := graph.AddLambdaNode("greet",
		compose.InvokableLambda(func(ctx context.Context, in *DialState) (*DialState, error) {
			return o.greet(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node greet: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_call",
		compose.InvokableLambda(func(ctx context.Context, in *DialState) (*Call, error) {
			return o.finalizeCall(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_call: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "open_conversation"},
		{"open_conversation", "start_session"},
		{"start_session", "greet"},
		{"greet", "finalize_call"},
		{"finalize_call", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.dial"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
