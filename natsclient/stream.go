package natsclient

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamAlchemist is the durable JetStream stream provisioned over
	// SubjectAll. router.NatsRouter publishes each Msg on its bare
	// four-token subject, without the ALCHEMIST prefix, so routed
	// messages are not captured by this stream.
	StreamAlchemist = "ALCHEMIST"
	// SubjectAll matches every subject under the ALCHEMIST prefix.
	SubjectAll = "ALCHEMIST.>"
	// SubjectRenderer carries bus-mode renderer bridge traffic, outside
	// the ALCHEMIST stream (spec.md §4.9 treats it as a separate typed
	// channel, not a domain event stream).
	SubjectRenderer = "RENDERER.>"
)

var streamSubjects = []string{SubjectAll}

// ProvisionStreams idempotently ensures the ALCHEMIST JetStream stream
// exists. It creates the stream on first run and is a no-op if the stream
// already exists.
func (c *Client) ProvisionStreams() error {
	info, err := c.JS.StreamInfo(StreamAlchemist)
	if err == nil {
		_ = info
		c.Log.Info("nats stream already exists", zap.String("stream", StreamAlchemist))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("natsclient: stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamAlchemist,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("natsclient: create stream: %w", err)
	}

	c.Log.Info("nats stream provisioned",
		zap.String("stream", StreamAlchemist),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}
