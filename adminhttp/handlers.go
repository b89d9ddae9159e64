// Package adminhttp exposes a read-only introspection surface over the
// router and event log: /healthz, /v1/subscriptions, and
// /v1/streams/:stream/records. Modelled on audit-service's
// handler.RegisterRoutes — this surface never mutates state via HTTP,
// only audit-service's querier is swapped for eventlog.Log and
// router.Introspector.
package adminhttp

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/eventlog"
	"github.com/arc-self/alchemist-core/middleware"
	"github.com/arc-self/alchemist-core/router"
	"github.com/arc-self/alchemist-core/telemetry"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
)

// RegisterRoutes mounts the admin introspection surface. introspector may
// be nil — /v1/subscriptions then reports 501, which is the correct
// answer for a NatsRouter-backed deployment (spec.md: NATS itself owns
// subscription state server-side, not this process).
func RegisterRoutes(e *echo.Echo, log eventlog.Log, introspector router.Introspector, logger *zap.Logger) {
	e.Use(middleware.NullToEmptyArray())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(telemetry.Registry, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	v1.GET("/subscriptions", listSubscriptionsHandler(introspector))
	v1.GET("/streams/:stream/records", listStreamRecordsHandler(log, logger))
}

func listSubscriptionsHandler(introspector router.Introspector) echo.HandlerFunc {
	return func(c echo.Context) error {
		if introspector == nil {
			return c.JSON(http.StatusNotImplemented, errResp("this router does not support subscription introspection"))
		}
		subs := introspector.Subscriptions()
		out := make([]subscriptionView, 0, len(subs))
		for _, s := range subs {
			out = append(out, subscriptionView{
				ID:         s.ID.String(),
				Pattern:    s.Pattern.String(),
				QueueGroup: s.QueueGroup,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"data":  out,
			"count": len(out),
		})
	}
}

func listStreamRecordsHandler(log eventlog.Log, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		stream := c.Param("stream")
		if stream == "" {
			return c.JSON(http.StatusBadRequest, errResp("stream is required"))
		}

		fromSequence, limit := parseRecordQuery(c)

		records, err := log.Read(c.Request().Context(), stream, fromSequence, limit)
		if err != nil {
			logger.Error("adminhttp: Read failed", zap.String("stream", stream), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errResp("failed to read stream records"))
		}

		out := make([]recordView, 0, len(records))
		for _, r := range records {
			out = append(out, recordView{
				Stream:   r.Stream,
				Sequence: r.Sequence,
				Cid:      r.Cid.String(),
				PrevCid:  r.PrevCid.String(),
				Subject:  r.Msg.Subject.String(),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"data":          out,
			"stream":        stream,
			"from_sequence": fromSequence,
			"limit":         limit,
			"count":         len(out),
		})
	}
}

// ── views ─────────────────────────────────────────────────────────────────

type subscriptionView struct {
	ID         string `json:"id"`
	Pattern    string `json:"pattern"`
	QueueGroup string `json:"queue_group,omitempty"`
}

type recordView struct {
	Stream   string `json:"stream"`
	Sequence uint64 `json:"sequence"`
	Cid      string `json:"cid"`
	PrevCid  string `json:"prev_cid"`
	Subject  string `json:"subject"`
}

// ── helpers ───────────────────────────────────────────────────────────────

func parseRecordQuery(c echo.Context) (fromSequence uint64, limit int) {
	limit = defaultRecordLimit
	if v := c.QueryParam("from_sequence"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			fromSequence = n
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxRecordLimit {
		limit = maxRecordLimit
	}
	return fromSequence, limit
}

func errResp(msg string) map[string]string {
	return map[string]string{"error": msg}
}
