package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/cache"
	"github.com/arc-self/alchemist-core/contentstore"
	"github.com/arc-self/alchemist-core/eventlog"
	"github.com/arc-self/alchemist-core/kernel"
	"github.com/arc-self/alchemist-core/policy"
	"github.com/arc-self/alchemist-core/ratelimit"
	"github.com/arc-self/alchemist-core/router"
	"github.com/arc-self/alchemist-core/subject"
	"github.com/arc-self/alchemist-core/telemetry"
)

// pipeline splits into a producer-facing admission path (Admit) and a
// subscriber-facing observation path (onDelivered): spec.md §4.5
// requires every durably-appended Event to reach the router only after
// its fsync completes, so the event log itself — wired up in serve.go
// via its SetPublisher method — is what calls router.Publish for
// Event-kind messages. Admit is therefore the only caller of
// eventLog.Append, and onDelivered never calls Append; it only observes
// whatever the router has already fanned out, for response-cache
// lookups and telemetry.
type pipeline struct {
	limiter       *ratelimit.Limiter
	policyEngine  *policy.Engine
	policySet     policy.Set
	eventLog      eventlog.Log
	contentStore  contentstore.Store
	responseCache cache.ResponseCache
	router        router.Router
	log           *zap.Logger
}

// subscribeObserver registers onDelivered against every subject on r,
// matching spec.md §4.4's multi-wildcard subscription form. It is a
// pure observer: the messages it sees already went through Admit (for
// Commands/Queries, published directly; for Events, published by the
// event log after fsync) and must not be re-admitted or re-appended.
func (p *pipeline) subscribeObserver(r router.Router) error {
	all, err := subject.ParsePattern(">")
	if err != nil {
		return err
	}
	_, err = r.Subscribe(all, "", p.onDelivered)
	return err
}

// Admit is the producer-facing entry point: admission control, policy
// evaluation, and content-reference validation, then either a durable
// eventLog.Append (Event-kind — the event log's own configured
// Publisher fans it out once fsync completes) or a direct
// router.Publish (Command/Query-kind, which are never durably logged).
func (p *pipeline) Admit(ctx context.Context, msg kernel.Msg) error {
	model := msg.Subject[0]
	key := ratelimit.BucketKey{Model: model, Tier: ratelimit.TierFree, SubjectKey: msg.OwnerID.String()}
	decision, err := p.limiter.Admit(ctx, key)
	if err != nil {
		p.log.Warn("pipeline: admission check failed", zap.Error(err), zap.String("subject", msg.Subject.String()))
		return err
	}
	telemetry.RateLimitAdmitted.WithLabelValues(model, "free", boolLabel(decision.Admitted)).Inc()
	if !decision.Admitted {
		p.log.Info("pipeline: message dropped by rate limiter", zap.String("subject", msg.Subject.String()))
		return alerr.New(alerr.KindRateLimited, "pipeline.Admit")
	}

	if len(p.policySet.Policies) > 0 {
		reqCtx := policy.Context{Variables: map[string]string{"subject": msg.Subject.String()}}
		dec, err := p.policyEngine.Evaluate(p.policySet, reqCtx)
		if err != nil {
			p.log.Error("pipeline: policy evaluation failed", zap.Error(err))
			return err
		}
		if dec.Effect == policy.Deny {
			p.log.Info("pipeline: message denied by policy", zap.String("reason", dec.Reason))
			return alerr.New(alerr.KindPolicyDeny, "pipeline.Admit")
		}
	}

	if msg.Payload.IsRef() {
		if ok, err := p.contentStore.Has(ctx, *msg.Payload.CID); err != nil || !ok {
			p.log.Warn("pipeline: referenced content missing from store",
				zap.String("cid", msg.Payload.CID.String()), zap.Bool("found", ok), zap.Error(err))
		}
	}

	if msg.Kind == kernel.KindEvent {
		if _, err := p.eventLog.Append(ctx, msg.Subject.String(), msg); err != nil {
			p.log.Error("pipeline: append failed", zap.Error(err))
			return err
		}
		telemetry.EventLogAppended.WithLabelValues(msg.Subject.String()).Inc()
		return nil
	}

	if err := p.router.Publish(ctx, msg); err != nil {
		p.log.Error("pipeline: publish failed", zap.Error(err))
		return err
	}
	return nil
}

// onDelivered observes messages the router has already fanned out:
// response-cache lookups for Query-kind messages and delivery
// telemetry. It never calls Append and never calls Publish — admission
// and durable logging happen exactly once, in Admit.
func (p *pipeline) onDelivered(ctx context.Context, msg kernel.Msg) {
	if msg.Kind == kernel.KindQuery {
		key := cache.StableKey(kernel.CanonicalBytes(msg))
		if _, hit, err := p.responseCache.Get(ctx, key); err == nil && hit {
			p.log.Debug("pipeline: response cache hit", zap.String("subject", msg.Subject.String()))
		}
	}

	telemetry.RouterDelivered.WithLabelValues(msg.Subject.String()).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
