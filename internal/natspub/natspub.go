package natspub

import (
	"context"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rawcarve/rawcarve/internal/resilience"
)

var propagator = propagation.TraceContext{}

// Connect dials NATS with retry; fleet collectors may come up after the
// carve host.
func Connect(ctx context.Context, url string) (*nats.Conn, error) {
	return resilience.Retry(ctx, 5, 500*time.Millisecond, func() (*nats.Conn, error) {
		return nats.Connect(url, nats.Name("rawcarve"))
	})
}

// Publish injects traceparent into headers and publishes data on subject.
func Publish(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: subject, Data: data, Header: hdr}
	return nc.PublishMsg(msg)
}
