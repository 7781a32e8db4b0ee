package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/internal/runtime"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoNodeFlow: A {true->B, false->FAILURE}, B {true->SUCCESS, false->FAILURE}.
func twoNodeFlow(t *testing.T) *domain.Flow {
	t.Helper()
	b := dsl.New("F", "/")
	a := b.Add("A")
	bn := b.Add("B")
	a.On("true", bn).Failure("false")
	bn.Success("true").Failure("false")
	flow, err := b.Build()
	require.NoError(t, err)
	return flow
}

func TestEngine_TwoNodeScenario(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")), []*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	require.NoError(t, err)

	require.True(t, step.Completed())
	assert.Equal(t, domain.OutcomeSuccess, step.Result.FinalOutcome)
	assert.Equal(t, []string{"A", "B"}, f.factory.evaluated)
	assert.Len(t, f.publisher.named(audit.EventNodeLoginCompleted), 2)
	assert.Len(t, f.publisher.named(audit.EventTreeLoginCompleted), 1)
	assert.Empty(t, f.publisher.named(audit.EventTreeLoginFailed))
	assert.Equal(t, domain.StatusCompleted, step.State.Status)
	assert.Equal(t, domain.SuccessNodeID, step.State.CurrentNodeID)
}

func TestEngine_NotAudited(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")), []*domain.Flow{flow})
	f.publisher.auditing = false

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	require.NoError(t, err)
	require.True(t, step.Completed())
	assert.Empty(t, f.publisher.events)
}

func TestEngine_FailureOutcome(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("false")), []*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)
	assert.Len(t, f.publisher.named(audit.EventTreeLoginFailed), 1)
}

func TestEngine_UndefinedOutcome(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("maybe")), []*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)

	var undefined *domain.UndefinedOutcomeError
	require.ErrorAs(t, err, &undefined)
	assert.Equal(t, "maybe", undefined.Outcome)
	assert.Equal(t, flow.Entry(), undefined.NodeID)

	require.NotNil(t, step)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)
	assert.Equal(t, domain.FailureNodeID, step.State.CurrentNodeID)
	assert.Empty(t, f.publisher.named(audit.EventNodeLoginCompleted))
	assert.Len(t, f.publisher.named(audit.EventTreeLoginFailed), 1)
}

func TestEngine_NodeProcessingFailure(t *testing.T) {
	boom := errors.New("ldap unreachable")
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().
		on("A", always("true")).
		on("B", func(*domain.TreeContext) (domain.Action, error) { return domain.Action{}, boom }),
		[]*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)

	var failure *domain.NodeProcessingFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)
	// A completed before B failed
	assert.Len(t, f.publisher.named(audit.EventNodeLoginCompleted), 1)
}

func TestEngine_NodeCreationFailure(t *testing.T) {
	flow := twoNodeFlow(t)
	factory := newFactory().on("A", always("true"))
	factory.failTypes["B"] = errors.New("secret store unavailable")
	f := newFixture(t, factory, []*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)

	var failure *domain.NodeProcessingFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, domain.ErrNodeCreation)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)
}

func TestEngine_CompletedReentry(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")), []*domain.Flow{flow})

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	require.NoError(t, err)

	_, err = f.engine.Advance(context.Background(), step.State, nil)
	var completed *domain.FlowAlreadyCompletedError
	require.ErrorAs(t, err, &completed)
	assert.Equal(t, domain.OutcomeSuccess, completed.Outcome)
}

func TestEngine_StartUnknownFlow(t *testing.T) {
	f := newFixture(t, newFactory(), nil)
	_, err := f.engine.Start(context.Background(), "s", "/", "Missing", nil)
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestEngine_StepLimit(t *testing.T) {
	b := dsl.New("Loop", "/")
	a := b.Add("A")
	c := b.Add("B")
	a.On("true", c)
	c.On("true", a)
	flow, err := b.Build()
	require.NoError(t, err)

	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")),
		[]*domain.Flow{flow}, runtime.WithMaxSteps(10))

	step, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	assert.ErrorIs(t, err, domain.ErrStepLimitExceeded)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)
	assert.Len(t, f.factory.evaluated, 10)
}

func TestEngine_CancelledContext(t *testing.T) {
	flow := twoNodeFlow(t)
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")), []*domain.Flow{flow})
	state := f.start(t, flow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step, err := f.engine.Advance(ctx, state, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, step)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	flow := twoNodeFlow(t)

	var entered, left []string
	var completed []domain.Outcome
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			entered = append(entered, e.NodeType)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			left = append(left, e.NodeType+":"+e.Outcome)
		},
		OnFlowComplete: func(_ context.Context, e *domain.FlowEvent) {
			completed = append(completed, e.Outcome)
		},
	}
	f := newFixture(t, newFactory().on("A", always("true")).on("B", always("true")),
		[]*domain.Flow{flow}, runtime.WithLifecycleHooks(hooks))

	_, err := f.engine.Advance(context.Background(), f.start(t, flow), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, entered)
	assert.Equal(t, []string{"A:true", "B:true"}, left)
	assert.Equal(t, []domain.Outcome{domain.OutcomeSuccess}, completed)
}
