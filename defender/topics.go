package defender

import (
	"fmt"

	"github.com/vinayprograms/defender/bus"
	"github.com/vinayprograms/defender/errors"
)

// MaxDeviceIDLength bounds the device identifier accepted by Start.
const MaxDeviceIDLength = 128

// Topic layout.
const (
	TopicPrefix    = "$aws/things/"
	TopicSuffix    = "/defender/metrics/cbor"
	AcceptedSuffix = "/accepted"
	RejectedSuffix = "/rejected"
)

// TopicSet holds the three topics derived from a device id.
type TopicSet struct {
	Publish  string
	Accepted string
	Rejected string
}

// NewTopicSet derives the report and verdict topics for deviceID. Either
// all three topics are valid or an error is returned.
func NewTopicSet(deviceID string) (*TopicSet, error) {
	if deviceID == "" {
		return nil, errors.InvalidInput("device id is empty")
	}
	if len(deviceID) > MaxDeviceIDLength {
		return nil, errors.InvalidInput(fmt.Sprintf("device id is %d bytes, limit is %d", len(deviceID), MaxDeviceIDLength))
	}

	publish := TopicPrefix + deviceID + TopicSuffix
	t := &TopicSet{
		Publish:  publish,
		Accepted: publish + AcceptedSuffix,
		Rejected: publish + RejectedSuffix,
	}
	for _, topic := range t.All() {
		if err := bus.ValidateSubject(topic); err != nil {
			return nil, errors.InvalidInput("device id is not usable in a topic",
				errors.WithCause(err), errors.WithMetadata("device", deviceID))
		}
	}
	return t, nil
}

// All returns the publish, accepted and rejected topics in that order.
func (t *TopicSet) All() []string {
	return []string{t.Publish, t.Accepted, t.Rejected}
}

// Destroy clears the topics. Call it once, paired with NewTopicSet.
func (t *TopicSet) Destroy() {
	t.Publish, t.Accepted, t.Rejected = "", "", ""
}
