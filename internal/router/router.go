// Package router picks a backend for every completion and proxies it there,
// with health-aware candidate ranking, per-provider admission and bounded
// failover: one same-candidate retry after a fixed delay, then one hop to the
// next candidate. Permanent upstream rejections are never retried.
package router

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetd/internal/health"
	"fleetd/internal/lifecycle"
	"fleetd/internal/registry"
	"fleetd/pkg/types"
)

// HealthView is the router's read-only view of provider health.
type HealthView interface {
	StatusFor(providerID string) health.Status
}

// Scheduler is the lifecycle surface the router drives.
type Scheduler interface {
	EnsureRunning(ctx context.Context, modelID string, force bool) error
	Touch(modelID string)
	GamingMode() bool
}

const defaultFailoverDelay = 250 * time.Millisecond

var (
	errAtCapacity  = errors.New("provider at capacity")
	errEmptyStream = errors.New("upstream closed stream without frames")
)

// Config encapsulates all tunables for Router construction.
type Config struct {
	Registry      *registry.Registry
	Health        HealthView
	Scheduler     Scheduler
	Upstream      Upstream
	DefaultModel  string
	FailoverDelay time.Duration
	Logger        *zerolog.Logger
}

// Router routes completions. Safe for concurrent use.
type Router struct {
	reg           *registry.Registry
	health        HealthView
	sched         Scheduler
	upstream      Upstream
	counters      *Counters
	defaultModel  string
	failoverDelay time.Duration
	log           zerolog.Logger
}

// New constructs a Router from Config and applies defaults for unset fields.
func New(cfg Config) *Router {
	rt := &Router{
		reg:           cfg.Registry,
		health:        cfg.Health,
		sched:         cfg.Scheduler,
		upstream:      cfg.Upstream,
		counters:      NewCounters(cfg.Registry),
		defaultModel:  cfg.DefaultModel,
		failoverDelay: cfg.FailoverDelay,
		log:           zerolog.Nop(),
	}
	if cfg.Logger != nil {
		rt.log = cfg.Logger.With().Str("component", "router").Logger()
	}
	if rt.defaultModel == "" {
		rt.defaultModel = registry.AliasAuto
	}
	if rt.failoverDelay <= 0 {
		rt.failoverDelay = defaultFailoverDelay
	}
	return rt
}

// Active returns the provider's in-flight request count, for /status.
func (rt *Router) Active(providerID string) int64 { return rt.counters.Active(providerID) }

// estimateTokens sizes a request for tier selection: prompt chars/4 plus the
// requested completion budget.
func estimateTokens(req types.ChatCompletionRequest) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return chars/4 + req.MaxTokens
}

func (rt *Router) selectCandidate(req types.ChatCompletionRequest) (candidate, error) {
	return rt.selectCandidateExcluding(req, "")
}

// selectCandidateExcluding resolves the requested name and picks the best
// candidate that survives the health, gaming and capacity filters. For
// "auto" the fallback tier is consulted before giving up, so a fully
// filtered preferred tier downgrades instead of failing.
func (rt *Router) selectCandidateExcluding(req types.ChatCompletionRequest, exclude string) (candidate, error) {
	name := req.Model
	if name == "" {
		name = rt.defaultModel
	}
	preferred, fallback, err := rt.reg.Resolve(name, estimateTokens(req))
	if err != nil {
		return candidate{}, err
	}
	if cand, ok := rt.pick(preferred, exclude, req.Force); ok {
		return cand, nil
	}
	if cand, ok := rt.pick(fallback, exclude, req.Force); ok {
		return cand, nil
	}
	return candidate{}, ErrProviderUnavailable(name)
}

func (rt *Router) pick(models []types.Model, exclude string, force bool) (candidate, bool) {
	gaming := rt.sched.GamingMode()
	var cands []candidate
	for _, m := range models {
		if m.ID == exclude {
			continue
		}
		p, ok := rt.reg.ProviderByID(m.ProviderID)
		if !ok {
			continue
		}
		st := rt.health.StatusFor(p.ID)
		if st == health.StatusUnhealthy && !force {
			continue
		}
		if gaming && !force && m.Managed() {
			continue
		}
		active := rt.counters.Active(p.ID)
		if active >= int64(p.MaxConcurrent) {
			continue
		}
		cands = append(cands, candidate{model: m, provider: p, status: st, active: active})
	}
	if len(cands) == 0 {
		return candidate{}, false
	}
	sortCandidates(cands)
	return cands[0], true
}

// Complete routes one non-streaming completion.
func (rt *Router) Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	cand, err := rt.selectCandidate(req)
	if err != nil {
		return nil, err
	}
	resp, err := rt.completeOnce(ctx, cand, req)
	if err == nil {
		return resp, nil
	}
	if lifecycle.IsBlockedByGamingMode(err) {
		// the gate flipped after selection; reselect under the new state
		return rt.completeHop(ctx, cand, req, err)
	}
	if !IsUpstreamTransient(err) {
		return nil, err
	}

	rt.log.Warn().Err(err).Str("provider", cand.provider.ID).Msg("transient failure, retrying candidate")
	failoversTotal.WithLabelValues("retry").Inc()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(rt.failoverDelay):
	}
	resp, err = rt.completeOnce(ctx, cand, req)
	if err == nil {
		return resp, nil
	}
	if !IsUpstreamTransient(err) && !lifecycle.IsBlockedByGamingMode(err) {
		return nil, err
	}
	return rt.completeHop(ctx, cand, req, err)
}

func (rt *Router) completeHop(ctx context.Context, failed candidate, req types.ChatCompletionRequest, origErr error) (*types.ChatCompletionResponse, error) {
	next, serr := rt.selectCandidateExcluding(req, failed.model.ID)
	if serr != nil {
		return nil, origErr
	}
	failoversTotal.WithLabelValues("hop").Inc()
	rt.log.Warn().Str("from", failed.model.ID).Str("to", next.model.ID).Msg("failing over")
	return rt.completeOnce(ctx, next, req)
}

func (rt *Router) completeOnce(ctx context.Context, cand candidate, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	release, err := rt.admit(ctx, cand, req.Force)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := rt.upstream.Complete(ctx, cand.provider, cand.model, req)
	if err != nil {
		requestsTotal.WithLabelValues(cand.provider.ID, "error").Inc()
		return nil, err
	}
	rt.finishOK(cand)
	resp.Provider = cand.provider.ID
	resp.Model = cand.model.ID
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + uuid.NewString()
	}
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	return resp, nil
}

// StreamTo proxies a streaming completion into w, flushing frame by frame.
// Failover applies only until the first frame has reached the client.
func (rt *Router) StreamTo(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error {
	if flush == nil {
		flush = func() {}
	}
	cand, err := rt.selectCandidate(req)
	if err != nil {
		return err
	}
	forwarded, err := rt.streamOnce(ctx, cand, req, w, flush)
	if err == nil || forwarded {
		return err
	}
	if lifecycle.IsBlockedByGamingMode(err) {
		return rt.streamHop(ctx, cand, req, err, w, flush)
	}
	if !IsUpstreamTransient(err) {
		return err
	}

	rt.log.Warn().Err(err).Str("provider", cand.provider.ID).Msg("transient stream failure, retrying candidate")
	failoversTotal.WithLabelValues("retry").Inc()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(rt.failoverDelay):
	}
	forwarded, err = rt.streamOnce(ctx, cand, req, w, flush)
	if err == nil || forwarded {
		return err
	}
	if !IsUpstreamTransient(err) && !lifecycle.IsBlockedByGamingMode(err) {
		return err
	}
	return rt.streamHop(ctx, cand, req, err, w, flush)
}

func (rt *Router) streamHop(ctx context.Context, failed candidate, req types.ChatCompletionRequest, origErr error, w io.Writer, flush func()) error {
	next, serr := rt.selectCandidateExcluding(req, failed.model.ID)
	if serr != nil {
		return origErr
	}
	failoversTotal.WithLabelValues("hop").Inc()
	rt.log.Warn().Str("from", failed.model.ID).Str("to", next.model.ID).Msg("failing stream over")
	_, err := rt.streamOnce(ctx, next, req, w, flush)
	return err
}

func (rt *Router) streamOnce(ctx context.Context, cand candidate, req types.ChatCompletionRequest, w io.Writer, flush func()) (bool, error) {
	release, err := rt.admit(ctx, cand, req.Force)
	if err != nil {
		return false, err
	}
	defer release()

	body, err := rt.upstream.Stream(ctx, cand.provider, cand.model, req)
	if err != nil {
		requestsTotal.WithLabelValues(cand.provider.ID, "error").Inc()
		return false, err
	}
	defer body.Close()

	forwarded, err := relaySSE(w, flush, body, cand.provider.ID)
	if err != nil {
		requestsTotal.WithLabelValues(cand.provider.ID, "error").Inc()
		return forwarded, err
	}
	if !forwarded {
		requestsTotal.WithLabelValues(cand.provider.ID, "error").Inc()
		return false, ErrUpstreamUnavailable(cand.provider.ID, errEmptyStream)
	}
	rt.finishOK(cand)
	return true, nil
}

// admit ensures the container for managed models and reserves a provider
// slot. The release func must be called exactly once.
func (rt *Router) admit(ctx context.Context, cand candidate, force bool) (func(), error) {
	if cand.model.Managed() {
		if err := rt.sched.EnsureRunning(ctx, cand.model.ID, force); err != nil {
			if lifecycle.IsBlockedByGamingMode(err) {
				return nil, err
			}
			return nil, ErrUpstreamUnavailable(cand.provider.ID, err)
		}
	}
	release, ok := rt.counters.Admit(cand.provider.ID)
	if !ok {
		return nil, ErrUpstreamUnavailable(cand.provider.ID, errAtCapacity)
	}
	return release, nil
}

func (rt *Router) finishOK(cand candidate) {
	if cand.model.Managed() {
		rt.sched.Touch(cand.model.ID)
	}
	requestsTotal.WithLabelValues(cand.provider.ID, "ok").Inc()
}
