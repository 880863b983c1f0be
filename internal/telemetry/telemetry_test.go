package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	req := require.New(t)

	shutdown, err := Setup(context.Background(), "flux-test", "  ")
	req.NoError(err)
	req.NotNil(shutdown)
	req.NoError(shutdown(context.Background()))

	_, span := Tracer("flux-test").Start(context.Background(), "noop")
	defer span.End()
	req.False(span.SpanContext().IsValid())
}
