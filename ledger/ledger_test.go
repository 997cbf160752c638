package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var at = time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

func TestLedger_RecordAndLast(t *testing.T) {
	l := New(NewMemoryStore())
	defer l.Close()

	accepted := Entry{ReportID: 100, Event: "accepted", Status: "ACCEPTED", ReportBytes: 64, At: at}
	if err := l.Record("thing-1", accepted); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	rejected := Entry{
		ReportID:     101,
		Event:        "rejected",
		Status:       "REJECTED",
		ErrorCode:    "Throttled",
		ErrorMessage: "slow down",
		At:           at.Add(5 * time.Minute),
	}
	if err := l.Record("thing-1", rejected); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	last, err := l.Last("thing-1")
	if err != nil {
		t.Fatalf("Last error: %v", err)
	}
	if last != rejected {
		t.Errorf("Last() = %+v, want %+v", last, rejected)
	}

	prev, err := l.LastEvent("thing-1", "accepted")
	if err != nil {
		t.Fatalf("LastEvent error: %v", err)
	}
	if prev != accepted {
		t.Errorf("LastEvent(accepted) = %+v, want %+v", prev, accepted)
	}
}

func TestLedger_UnknownDevice(t *testing.T) {
	l := New(NewMemoryStore())
	if _, err := l.Last("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Last(nobody) = %v, want ErrNotFound", err)
	}
}

func TestLedger_SanitizesDeviceID(t *testing.T) {
	store := NewMemoryStore()
	l := New(store)

	if err := l.Record("arn:aws thing/1", Entry{Event: "mqtt_failure", At: at}); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	keys, _ := store.Keys("*")
	want := "[arn_aws_thing_1.last arn_aws_thing_1.mqtt_failure]"
	if fmt.Sprint(keys) != want {
		t.Errorf("keys = %v, want %s", keys, want)
	}
	if _, err := l.Last("arn:aws thing/1"); err != nil {
		t.Errorf("Last with original id: %v", err)
	}
}

func TestLedger_Devices(t *testing.T) {
	l := New(NewMemoryStore())
	l.Record("b", Entry{Event: "accepted", At: at})
	l.Record("a", Entry{Event: "rejected", At: at})

	devices, err := l.Devices()
	if err != nil {
		t.Fatalf("Devices error: %v", err)
	}
	if fmt.Sprint(devices) != "[a b]" {
		t.Errorf("Devices() = %v", devices)
	}
}

func TestLedger_RequiresEvent(t *testing.T) {
	l := New(NewMemoryStore())
	if err := l.Record("thing-1", Entry{}); err == nil {
		t.Error("expected error for entry without event")
	}
}

func TestLedger_ClosedStore(t *testing.T) {
	l := New(NewMemoryStore())
	l.Close()
	if err := l.Record("thing-1", Entry{Event: "accepted"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after close = %v, want ErrClosed", err)
	}
}
