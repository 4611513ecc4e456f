package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/secrets"
)

var (
	errQuota     = ai.NewProviderError("fake", ai.CategoryQuota, errors.New("you exceeded your current quota"))
	errRate      = ai.NewProviderError("fake", ai.CategoryRateLimited, errors.New("too many requests"))
	errTransient = ai.NewProviderError("fake", ai.CategoryTransient, errors.New("connection reset by peer"))
	errAuth      = ai.NewProviderError("fake", ai.CategoryAuth, errors.New("invalid api key"))
)

// script drives fake clients: each model pops its next outcome, nil meaning success.
type script struct {
	mu        sync.Mutex
	outcomes  map[string][]error
	buildErrs map[string]error
	calls     map[string]int
	builds    map[string]int
}

func newScript() *script {
	return &script{
		outcomes:  map[string][]error{},
		buildErrs: map[string]error{},
		calls:     map[string]int{},
		builds:    map[string]int{},
	}
}

func (s *script) factory(_ context.Context, spec ClientSpec) (ai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds[spec.Model]++
	if err := s.buildErrs[spec.Model]; err != nil {
		return nil, err
	}
	return &fakeClient{model: spec.Model, script: s}, nil
}

func (s *script) next(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[model]++
	queue := s.outcomes[model]
	if len(queue) == 0 {
		return nil
	}
	s.outcomes[model] = queue[1:]
	return queue[0]
}

func (s *script) callsTo(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[model]
}

type fakeClient struct {
	model  string
	script *script
}

func (c *fakeClient) Generate(context.Context, string) (string, error) {
	if err := c.script.next(c.model); err != nil {
		return "", err
	}
	return "ok:" + c.model, nil
}

func (c *fakeClient) Model() string { return c.model }

func generate(ctx context.Context, c ai.Client) (string, error) {
	return c.Generate(ctx, "prompt")
}

func vendor(name, env string, s *script, variants ...string) Vendor {
	return Vendor{Name: name, CredentialEnv: env, Variants: variants, Factory: s.factory}
}

func allKeys() secrets.LookupFunc {
	return secrets.MapLookup(map[string]string{
		"ALPHA_KEY": "a", "BETA_KEY": "b", "GAMMA_KEY": "g", "DELTA_KEY": "d",
	})
}

type waitRecorder struct {
	waits []time.Duration
	err   error
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return w.err
}

func newTestInvoker(chain Chain, opts Options) (*Invoker, *waitRecorder) {
	inv := NewInvoker(chain, opts, zap.NewNop())
	rec := &waitRecorder{}
	inv.wait = rec.wait
	return inv, rec
}

func TestBuildChainOrderAndMissing(t *testing.T) {
	s := newScript()
	catalog := []Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "a1", " ", "a2"),
		vendor("Beta", "BETA_KEY", s, "b1"),
		vendor("Gamma", "GAMMA_KEY", s, "g1"),
	}

	chain := BuildChain(catalog, secrets.MapLookup(map[string]string{"ALPHA_KEY": "a", "GAMMA_KEY": "  "}))

	require.Equal(t, 2, chain.Len())
	assert.Equal(t, "Alpha (a1)", chain.Descriptors[0].DisplayName())
	assert.Equal(t, "Alpha (a2)", chain.Descriptors[1].DisplayName())
	assert.Equal(t, 1, chain.Descriptors[1].Position)
	assert.Equal(t, []string{"BETA_KEY", "GAMMA_KEY"}, chain.Missing)
}

func TestBuildChainEmpty(t *testing.T) {
	chain := BuildChain(DefaultCatalog(CatalogConfig{}), secrets.MapLookup(nil))

	assert.True(t, chain.Empty())
	assert.Equal(t, []string{GeminiCredential, GroqCredential}, chain.Missing)
}

func TestDefaultCatalogOrdering(t *testing.T) {
	chain := BuildChain(DefaultCatalog(CatalogConfig{}), secrets.MapLookup(map[string]string{
		GeminiCredential: "g", GroqCredential: "q",
	}))

	var names []string
	for _, d := range chain.Descriptors {
		names = append(names, d.DisplayName())
	}
	assert.Equal(t, []string{
		"Gemini (gemini-2.5-flash)",
		"Gemini (gemini-2.0-flash)",
		"Gemini (gemini-2.0-flash-lite)",
		"Groq (llama-3.3-70b-versatile)",
	}, names)
}

func TestInvokeQuotaThenRateThenSuccess(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errQuota}
	s.outcomes["p2"] = []error{errRate}

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
		vendor("Gamma", "GAMMA_KEY", s, "p3"),
		vendor("Delta", "DELTA_KEY", s, "p4"),
	}, allKeys())
	inv, rec := newTestInvoker(chain, Options{})

	out, usage, err := Invoke(context.Background(), inv, generate)
	require.NoError(t, err)

	assert.Equal(t, "ok:p3", out)
	assert.Equal(t, 1, s.callsTo("p1"))
	assert.Equal(t, 1, s.callsTo("p2"))
	assert.Equal(t, 1, s.callsTo("p3"))
	assert.Equal(t, 0, s.callsTo("p4"))
	assert.Equal(t, Usage{Provider: "Gamma (p3)", Vendor: "Gamma", Model: "p3", Attempts: 3}, usage)
	// Only the rate limit waits.
	assert.Equal(t, []time.Duration{DefaultBackoff}, rec.waits)
}

func TestInvokeRetriesTransientOnSameProvider(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errTransient}

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, allKeys())
	inv, rec := newTestInvoker(chain, Options{MaxRetries: 2})

	out, usage, err := Invoke(context.Background(), inv, generate)
	require.NoError(t, err)

	assert.Equal(t, "ok:p1", out)
	assert.Equal(t, 2, s.callsTo("p1"))
	assert.Equal(t, 0, s.callsTo("p2"))
	assert.Equal(t, 2, usage.Attempts)
	assert.Len(t, rec.waits, 1)
	// A fresh client is built for every attempt.
	assert.Equal(t, 2, s.builds["p1"])
}

func TestInvokeQuotaPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     QuotaPolicy
		expectOut  string
		expectA2   int
		expectBeta int
	}{
		{name: "vendor skips sibling variants", policy: QuotaSkipVendor, expectOut: "ok:b1", expectA2: 0, expectBeta: 1},
		{name: "provider skips only the current entry", policy: QuotaSkipProvider, expectOut: "ok:a2", expectA2: 1, expectBeta: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScript()
			s.outcomes["a1"] = []error{errQuota}

			chain := BuildChain([]Vendor{
				vendor("Alpha", "ALPHA_KEY", s, "a1", "a2"),
				vendor("Beta", "BETA_KEY", s, "b1"),
			}, allKeys())
			inv, rec := newTestInvoker(chain, Options{QuotaPolicy: tt.policy})

			out, _, err := Invoke(context.Background(), inv, generate)
			require.NoError(t, err)

			assert.Equal(t, tt.expectOut, out)
			assert.Equal(t, 1, s.callsTo("a1"))
			assert.Equal(t, tt.expectA2, s.callsTo("a2"))
			assert.Equal(t, tt.expectBeta, s.callsTo("b1"))
			assert.Empty(t, rec.waits)
		})
	}
}

func TestInvokeAuthAbandonsProviderWithoutWaiting(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errAuth}

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, allKeys())
	inv, rec := newTestInvoker(chain, Options{})

	out, _, err := Invoke(context.Background(), inv, generate)
	require.NoError(t, err)
	assert.Equal(t, "ok:p2", out)
	assert.Equal(t, 1, s.callsTo("p1"))
	assert.Empty(t, rec.waits)
}

func TestInvokeSkipsProviderWhenClientCannotBeBuilt(t *testing.T) {
	s := newScript()
	s.buildErrs["p1"] = errors.New("dial failed")

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, allKeys())
	inv, _ := newTestInvoker(chain, Options{})

	out, _, err := Invoke(context.Background(), inv, generate)
	require.NoError(t, err)
	assert.Equal(t, "ok:p2", out)
	assert.Equal(t, 1, s.builds["p1"])
	assert.Equal(t, 0, s.callsTo("p1"))
}

func TestInvokeEmptyChain(t *testing.T) {
	s := newScript()
	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, secrets.MapLookup(nil))
	inv, _ := newTestInvoker(chain, Options{})

	called := false
	_, _, err := Invoke(context.Background(), inv, func(context.Context, ai.Client) (string, error) {
		called = true
		return "", nil
	})

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, called)
	assert.Zero(t, failed.Attempts)
	assert.Equal(t, "no inference providers available: ALPHA_KEY, BETA_KEY not set", err.Error())
}

func TestInvokeExhaustionKeepsLastThreeErrors(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errTransient, errTransient}
	s.outcomes["p2"] = []error{errTransient, errTransient}

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, allKeys())
	inv, rec := newTestInvoker(chain, Options{MaxRetries: 2})

	_, _, err := Invoke(context.Background(), inv, generate)

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 4, failed.Attempts)
	require.Len(t, failed.Errors, 3)
	assert.Equal(t, "Alpha (p1) (attempt 2): fake: connection reset by peer", failed.Errors[0])
	assert.Equal(t, "Beta (p2) (attempt 2): fake: connection reset by peer", failed.Errors[2])
	assert.Contains(t, err.Error(), "all providers failed (transient) after 4 attempts")
	assert.ErrorIs(t, err, errTransient)
	// No wait after the final attempt on each provider.
	assert.Len(t, rec.waits, 2)
}

func TestInvokeTruncatesAttemptSummaries(t *testing.T) {
	s := newScript()
	long := ai.NewProviderError("fake", ai.CategoryAuth, fmt.Errorf("%0200d", 0))
	s.outcomes["p1"] = []error{long}

	chain := BuildChain([]Vendor{vendor("Alpha", "ALPHA_KEY", s, "p1")}, allKeys())
	inv, _ := newTestInvoker(chain, Options{})

	_, _, err := Invoke(context.Background(), inv, generate)

	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, len("Alpha (p1) (attempt 1): ")+attemptErrorLimit, len(failed.Errors[0]))
}

func TestInvokeStopsWhenContextEndsDuringBackoff(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errRate}

	chain := BuildChain([]Vendor{
		vendor("Alpha", "ALPHA_KEY", s, "p1"),
		vendor("Beta", "BETA_KEY", s, "p2"),
	}, allKeys())
	inv, rec := newTestInvoker(chain, Options{})
	rec.err = context.Canceled

	_, _, err := Invoke(context.Background(), inv, generate)
	require.True(t, IsAllProvidersFailed(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.callsTo("p2"))
}

func TestInvokeStopsWhenContextEndsDuringRetryBackoff(t *testing.T) {
	s := newScript()
	s.outcomes["p1"] = []error{errTransient}

	chain := BuildChain([]Vendor{vendor("Alpha", "ALPHA_KEY", s, "p1")}, allKeys())
	inv, rec := newTestInvoker(chain, Options{})
	rec.err = context.DeadlineExceeded

	_, _, err := Invoke(context.Background(), inv, generate)
	require.True(t, IsAllProvidersFailed(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.callsTo("p1"))
}

func TestInvokeCancelledContext(t *testing.T) {
	s := newScript()
	chain := BuildChain([]Vendor{vendor("Alpha", "ALPHA_KEY", s, "p1")}, allKeys())
	inv, _ := newTestInvoker(chain, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Invoke(ctx, inv, generate)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.callsTo("p1"))
}

func TestFirstClient(t *testing.T) {
	t.Run("skips construction failures", func(t *testing.T) {
		s := newScript()
		s.buildErrs["p1"] = errors.New("boom")
		chain := BuildChain([]Vendor{
			vendor("Alpha", "ALPHA_KEY", s, "p1"),
			vendor("Beta", "BETA_KEY", s, "p2"),
		}, allKeys())

		client, d, err := chain.FirstClient(context.Background(), 0, nil)
		require.NoError(t, err)
		assert.Equal(t, "p2", client.Model())
		assert.Equal(t, "Beta", d.Vendor)
	})

	t.Run("authentication stops the search", func(t *testing.T) {
		s := newScript()
		s.buildErrs["p1"] = errAuth
		chain := BuildChain([]Vendor{
			vendor("Alpha", "ALPHA_KEY", s, "p1"),
			vendor("Beta", "BETA_KEY", s, "p2"),
		}, allKeys())

		_, _, err := chain.FirstClient(context.Background(), 0, nil)

		var authErr *AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "Alpha (p1)", authErr.Provider)
		assert.Equal(t, 0, s.builds["p2"])
	})

	t.Run("exhausted", func(t *testing.T) {
		s := newScript()
		s.buildErrs["p1"] = errors.New("boom")
		chain := BuildChain([]Vendor{vendor("Alpha", "ALPHA_KEY", s, "p1")}, allKeys())

		_, _, err := chain.FirstClient(context.Background(), 0, nil)
		assert.True(t, IsAllProvidersFailed(err))
	})
}

func TestParseQuotaPolicy(t *testing.T) {
	p, err := ParseQuotaPolicy("")
	require.NoError(t, err)
	assert.Equal(t, QuotaSkipVendor, p)

	p, err = ParseQuotaPolicy(" Provider ")
	require.NoError(t, err)
	assert.Equal(t, QuotaSkipProvider, p)

	_, err = ParseQuotaPolicy("family")
	assert.Error(t, err)
}
