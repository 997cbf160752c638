package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/defender/codec"
)

// Entry is one recorded reporting outcome.
type Entry struct {
	ReportID     uint64
	Event        string
	Status       string
	ErrorCode    string
	ErrorMessage string
	ReportBytes  int
	At           time.Time
}

type wireEntry struct {
	ReportID     uint64 `cbor:"report_id,omitempty"`
	Event        string `cbor:"event"`
	Status       string `cbor:"status,omitempty"`
	ErrorCode    string `cbor:"error_code,omitempty"`
	ErrorMessage string `cbor:"error_message,omitempty"`
	ReportBytes  int    `cbor:"report_bytes,omitempty"`
	AtMillis     int64  `cbor:"at"`
}

// Ledger writes entries under per-device keys:
//
//	<device>.last     most recent entry of any kind
//	<device>.<event>  most recent entry of that event
type Ledger struct {
	store Store
}

// New creates a ledger on store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Store returns the backing store.
func (l *Ledger) Store() Store {
	return l.store
}

// Record stores e as the device's latest entry and latest entry for e.Event.
func (l *Ledger) Record(deviceID string, e Entry) error {
	if e.Event == "" {
		return fmt.Errorf("ledger: entry without event")
	}
	data, err := codec.Marshal(wireEntry{
		ReportID:     e.ReportID,
		Event:        e.Event,
		Status:       e.Status,
		ErrorCode:    e.ErrorCode,
		ErrorMessage: e.ErrorMessage,
		ReportBytes:  e.ReportBytes,
		AtMillis:     e.At.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("ledger: encoding entry: %w", err)
	}

	dev := keyToken(deviceID)
	return errors.Join(
		l.store.Put(dev+".last", data),
		l.store.Put(dev+"."+keyToken(e.Event), data),
	)
}

// Last returns the device's most recent entry.
func (l *Ledger) Last(deviceID string) (Entry, error) {
	return l.get(keyToken(deviceID) + ".last")
}

// LastEvent returns the device's most recent entry for event.
func (l *Ledger) LastEvent(deviceID, event string) (Entry, error) {
	return l.get(keyToken(deviceID) + "." + keyToken(event))
}

// Devices lists every device with at least one entry.
func (l *Ledger) Devices() ([]string, error) {
	keys, err := l.store.Keys("*")
	if err != nil {
		return nil, err
	}
	var devices []string
	for _, k := range keys {
		if dev, ok := cutSuffix(k, ".last"); ok {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

// Close closes the backing store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

func (l *Ledger) get(key string) (Entry, error) {
	data, err := l.store.Get(key)
	if err != nil {
		return Entry{}, err
	}
	var w wireEntry
	if err := codec.Unmarshal(data, &w); err != nil {
		return Entry{}, fmt.Errorf("ledger: decoding %s: %w", key, err)
	}
	return Entry{
		ReportID:     w.ReportID,
		Event:        w.Event,
		Status:       w.Status,
		ErrorCode:    w.ErrorCode,
		ErrorMessage: w.ErrorMessage,
		ReportBytes:  w.ReportBytes,
		At:           time.UnixMilli(w.AtMillis).UTC(),
	}, nil
}

func cutSuffix(s, suffix string) (string, bool) {
	if len(s) < len(suffix) || s[len(s)-len(suffix):] != suffix {
		return s, false
	}
	return s[:len(s)-len(suffix)], true
}
