package gateway_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/gateway"
	"github.com/ashureev/sdlc-studio/internal/gateway/gatewaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveGatewayCall(_, _, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func fastOptions(obs gateway.Observer) gateway.Options {
	return gateway.Options{
		Timeout:    time.Second,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Observer:   obs,
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	script := gatewaytest.NewScripted(
		gatewaytest.Response{Err: gateway.Transient("scripted", "clarify", errors.New("503"))},
		gatewaytest.Response{Text: "What is the budget? [N]"},
	)
	client := gateway.NewClient(script, fastOptions(obs))

	got, err := client.Generate(context.Background(), gateway.Prompt{Op: "clarify", Text: "ask"})
	require.NoError(t, err)
	assert.Equal(t, "What is the budget? [N]", got)
	assert.Equal(t, 2, script.Calls())
	assert.Equal(t, []string{"transient", "ok"}, obs.outcomes)
}

func TestClientDoesNotRetryMalformedOrRejected(t *testing.T) {
	t.Parallel()

	for name, failure := range map[string]error{
		"malformed": gateway.Malformed("scripted", "clarify", errors.New("bad")),
		"rejected":  gateway.Rejected("scripted", "clarify", errors.New("401")),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			script := gatewaytest.NewScripted(gatewaytest.Response{Err: failure}, gatewaytest.Response{Text: "unused"})
			client := gateway.NewClient(script, fastOptions(nil))

			_, err := client.Generate(context.Background(), gateway.Prompt{Op: "clarify", Text: "ask"})
			require.Error(t, err)
			assert.False(t, gateway.IsRetryable(err))
			assert.Equal(t, 1, script.Calls())
		})
	}
}

func TestClientTreatsBlankCompletionAsMalformed(t *testing.T) {
	t.Parallel()

	script := gatewaytest.Texts("   \n")
	client := gateway.NewClient(script, fastOptions(nil))

	_, err := client.Generate(context.Background(), gateway.Prompt{Op: "synthesize", Text: "write"})
	require.ErrorIs(t, err, gateway.ErrMalformedResponse)
	assert.Equal(t, 1, script.Calls())
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	transient := gatewaytest.Response{Err: gateway.Transient("scripted", "clarify", errors.New("down"))}
	script := gatewaytest.NewScripted(transient, transient, transient, transient)
	client := gateway.NewClient(script, fastOptions(nil))

	_, err := client.Generate(context.Background(), gateway.Prompt{Op: "clarify", Text: "ask"})
	require.ErrorIs(t, err, gateway.ErrTransient)
	assert.Equal(t, 3, script.Calls())
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Generate(ctx context.Context, _ gateway.Prompt) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestClientAppliesTimeout(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	client := gateway.NewClient(blockingProvider{}, gateway.Options{
		Timeout:    20 * time.Millisecond,
		MaxRetries: 0,
		Observer:   obs,
	})

	start := time.Now()
	_, err := client.Generate(context.Background(), gateway.Prompt{Op: "clarify", Text: "ask"})
	require.ErrorIs(t, err, gateway.ErrTransient)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"timeout"}, obs.outcomes)
}

func TestClientRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	script := gatewaytest.Texts("x")
	client := gateway.NewClient(script, fastOptions(nil))
	_, err := client.Generate(context.Background(), gateway.Prompt{Text: " "})
	require.Error(t, err)
	assert.Zero(t, script.Calls())
}
