package pipeline

import (
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func finish(sess *domain.Session, agent domain.AgentID, output string) {
	run := sess.Run(agent)
	if run == nil {
		run = domain.NewRunState(agent, t0)
		sess.Runs[agent] = run
	}
	ts := t0
	run.Phase = domain.PhaseOutputReady
	run.Satisfied = true
	run.Output = output
	run.OutputAt = &ts
}

func TestUpstreamTable(t *testing.T) {
	assert.Empty(t, UpstreamFor(domain.AgentAnalyst))
	assert.Equal(t, []domain.AgentID{domain.AgentAnalyst}, UpstreamFor(domain.AgentDesigner))
	assert.Equal(t, []domain.AgentID{domain.AgentDesigner, domain.AgentAnalyst}, UpstreamFor(domain.AgentEstimator))
	assert.Equal(t, []domain.AgentID{domain.AgentDesigner, domain.AgentAnalyst}, UpstreamFor(domain.AgentCoder))
	assert.Equal(t, []domain.AgentID{domain.AgentCoder}, UpstreamFor(domain.AgentReviewer))
	assert.Equal(t, []domain.AgentID{domain.AgentDesigner, domain.AgentAnalyst}, UpstreamFor(domain.AgentTester))
	assert.Equal(t, []domain.AgentID{
		domain.AgentAnalyst, domain.AgentDesigner, domain.AgentEstimator,
		domain.AgentCoder, domain.AgentReviewer, domain.AgentTester,
	}, UpstreamFor(domain.AgentDeployer))
}

func TestContextSkipsMissingOutputs(t *testing.T) {
	sess := domain.NewSession("u1", "s1", t0)
	finish(sess, domain.AgentAnalyst, "requirements")

	got := Context(sess, domain.AgentEstimator)
	assert.Equal(t, []domain.UpstreamOutput{{Agent: domain.AgentAnalyst, Output: "requirements"}}, got)

	finish(sess, domain.AgentDesigner, "design")
	got = Context(sess, domain.AgentEstimator)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AgentDesigner, got[0].Agent)
	assert.Equal(t, domain.AgentAnalyst, got[1].Agent)

	assert.Empty(t, Context(sess, domain.AgentReviewer))
}

func TestAdvanceRequiresOutput(t *testing.T) {
	sess := domain.NewSession("u1", "s1", t0)
	Activate(sess, t0)

	_, err := Advance(sess, t0)
	require.ErrorIs(t, err, ErrOutputMissing)
	assert.Equal(t, 0, sess.Pipeline.Cursor)

	finish(sess, domain.AgentAnalyst, "requirements")
	next, err := Advance(sess, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentDesigner, next)
	assert.Equal(t, 1, sess.Pipeline.Cursor)
	require.NotNil(t, sess.Run(domain.AgentDesigner))
	assert.Equal(t, domain.PhaseAwaitingSpec, sess.Run(domain.AgentDesigner).Phase)
}

func TestAdvanceStopsAtLastAgent(t *testing.T) {
	sess := domain.NewSession("u1", "s1", t0)
	previous := sess.Pipeline.Cursor
	for _, id := range domain.Agents() {
		Activate(sess, t0)
		finish(sess, id, string(id)+" output")
		_, err := Advance(sess, t0)
		if id == domain.AgentDeployer {
			require.ErrorIs(t, err, ErrAtLastAgent)
			break
		}
		require.NoError(t, err)
		assert.Equal(t, previous+1, sess.Pipeline.Cursor)
		previous = sess.Pipeline.Cursor
	}
	assert.True(t, IsLast(sess))
	assert.Equal(t, domain.AgentDeployer, Current(sess))
}

func TestActivateIsIdempotent(t *testing.T) {
	sess := domain.NewSession("u1", "s1", t0)
	first := Activate(sess, t0)
	first.Spec = "keep me"
	second := Activate(sess, t0.Add(time.Minute))
	assert.Same(t, first, second)
	assert.Equal(t, "keep me", second.Spec)
}

func TestOverview(t *testing.T) {
	sess := domain.NewSession("u1", "s1", t0)
	finish(sess, domain.AgentAnalyst, "done")
	sess.Pipeline.Cursor = 1
	run := Activate(sess, t0)
	run.Append(domain.RoleUser, "spec", domain.DecisionNone, t0)

	stages := Overview(sess)
	require.Len(t, stages, 7)
	assert.Equal(t, StatusCompleted, stages[0].Status)
	assert.False(t, stages[0].Current)
	assert.Equal(t, StatusAsking, stages[1].Status)
	assert.True(t, stages[1].Current)
	assert.Equal(t, StatusAwaitingSpec, stages[2].Status)

	run.Satisfied = true
	assert.Equal(t, StatusAwaitingFeedback, StatusOf(sess, domain.AgentDesigner))
}
