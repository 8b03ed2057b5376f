package judge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/model"
)

// NATSClient sends runs as request/reply messages on one subject.
type NATSClient struct {
	nc      *nats.Conn
	subject string
}

// NewNATSClient creates a NATSClient.
func NewNATSClient(nc *nats.Conn, subject string) *NATSClient {
	return &NATSClient{nc: nc, subject: subject}
}

func (c *NATSClient) Run(ctx context.Context, req execution.RunRequest) ([]model.ExecutionOutcome, error) {
	body, err := json.Marshal(newRunRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrJudgeUnavailable, err)
	}
	return decodeResponse(msg.Data)
}

var _ execution.Judge = (*NATSClient)(nil)
