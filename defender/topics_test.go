package defender

import (
	"strings"
	"testing"

	"github.com/vinayprograms/defender/errors"
)

func TestNewTopicSet(t *testing.T) {
	topics, err := NewTopicSet("thing-1")
	if err != nil {
		t.Fatalf("NewTopicSet error: %v", err)
	}

	want := []string{
		"$aws/things/thing-1/defender/metrics/cbor",
		"$aws/things/thing-1/defender/metrics/cbor/accepted",
		"$aws/things/thing-1/defender/metrics/cbor/rejected",
	}
	got := topics.All()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewTopicSet_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("a", MaxDeviceIDLength+1)},
		{"wildcard", "thing>"},
		{"newline", "thing\n1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topics, err := NewTopicSet(tt.deviceID)
			if topics != nil {
				t.Errorf("partial topic set returned: %+v", topics)
			}
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("error = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestTopicSet_Destroy(t *testing.T) {
	topics, _ := NewTopicSet("thing-1")
	topics.Destroy()
	for i, topic := range topics.All() {
		if topic != "" {
			t.Errorf("topic %d = %q after Destroy", i, topic)
		}
	}
}
