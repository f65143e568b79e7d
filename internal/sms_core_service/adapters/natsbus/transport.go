package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/walletsms/golang_services/internal/sms_core_service/app"
)

// Transport hands segments to the device-side SMS sender over NATS.
type Transport struct {
	publisher Publisher
	subject   string
}

func NewTransport(publisher Publisher) *Transport {
	return &Transport{publisher: publisher, subject: SubjectSegmentsSend}
}

func (t *Transport) SendSegment(ctx context.Context, d app.SegmentDispatch) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal segment dispatch: %w", err)
	}
	return t.publisher.Publish(ctx, t.subject, data)
}
