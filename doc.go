/*
Package authtree is an engine for multi-step authentication flows.

An authentication flow is a directed graph of nodes. Each node collects input
(a username, a password, a choice), makes a decision or updates state, and
names an outcome; the outcome selects the next node until the flow reaches one
of the two terminals, SUCCESS or FAILURE. A node may embed another flow (an
inner tree) whose terminal outcome is mapped back to "true" or "false".

# Concept

The engine is request/response. Every call to Advance evaluates nodes until one
needs input from the client or the flow completes. A pending step carries the
callbacks the client must answer and is persisted; the client echoes back a
signed auth id together with its answers to resume it.

	flows := memory.NewRegistry(login)
	eng, err := authtree.New(flows, nodes.NewRegistry(),
		authtree.WithSigningKey(key, 15*time.Minute),
	)

	step, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", Flow: "Login"})
	authID, _ := eng.AuthID(step.State)
	// ... show step.Pending.Callbacks, then:
	step, err = eng.Advance(ctx, authtree.AdvanceRequest{
		Realm:   "/",
		AuthID:  authID,
		Answers: map[string]any{"username": "alice"},
	})

# Safety

Embedding is guarded twice: before a flow is stored, ValidateEmbedding rejects
any inner tree that could reach its own flow again, and at run time the
executor refuses to nest deeper than WithMaxEmbeddingDepth.

# Observability

Lifecycle hooks (see pkg/observability) receive node and flow events, and the
audit emitters publish AM-NODE-LOGIN-COMPLETED, AM-TREE-LOGIN-COMPLETED and
AM-TREE-LOGIN-FAILED records through any ports.AuditPublisher.
*/
package authtree
