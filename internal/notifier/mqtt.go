package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the subset of common/mqtt.Client the alerter needs.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte, timeout time.Duration) error
}

type supervisorAlert struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// MQTTAlerter publishes supervisor alerts to a topic.
type MQTTAlerter struct {
	pub     Publisher
	topic   string
	timeout time.Duration
}

func NewMQTTAlerter(pub Publisher, topic string, timeout time.Duration) *MQTTAlerter {
	return &MQTTAlerter{pub: pub, topic: topic, timeout: timeout}
}

var _ Alerter = (*MQTTAlerter)(nil)

func (a *MQTTAlerter) SendAlert(ctx context.Context, text string) error {
	payload, err := json.Marshal(supervisorAlert{Text: text, At: time.Now()})
	if err != nil {
		return err
	}
	timeout := a.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := a.pub.Publish(a.topic, false, payload, timeout); err != nil {
		return fmt.Errorf("failed to publish supervisor alert: %w", err)
	}
	return nil
}
