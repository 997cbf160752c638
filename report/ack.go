package report

import (
	"github.com/vinayprograms/defender/codec"
	"github.com/vinayprograms/defender/errors"
)

// Acknowledgement statuses sent by the service.
const (
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// Ack is the service's verdict on one report.
type Ack struct {
	ReportID     uint64
	Status       string
	ThingName    string
	ErrorCode    string
	ErrorMessage string
}

type wireAck struct {
	ReportID      uint64             `cbor:"reportId,omitempty"`
	Status        string             `cbor:"status,omitempty"`
	ThingName     string             `cbor:"thingName,omitempty"`
	StatusDetails *wireStatusDetails `cbor:"statusDetails,omitempty"`
}

type wireStatusDetails struct {
	ErrorCode    string `cbor:"ErrorCode,omitempty"`
	ErrorMessage string `cbor:"ErrorMessage,omitempty"`
}

// DecodeAck parses an acknowledgement payload.
func DecodeAck(payload []byte) (Ack, error) {
	if len(payload) == 0 {
		return Ack{}, errors.InvalidInput("empty acknowledgement")
	}
	var w wireAck
	if err := codec.Unmarshal(payload, &w); err != nil {
		return Ack{}, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "decoding acknowledgement")
	}
	a := Ack{
		ReportID:  w.ReportID,
		Status:    w.Status,
		ThingName: w.ThingName,
	}
	if w.StatusDetails != nil {
		a.ErrorCode = w.StatusDetails.ErrorCode
		a.ErrorMessage = w.StatusDetails.ErrorMessage
	}
	return a, nil
}

// EncodeAck produces the payload a service sends back for a report.
func EncodeAck(a Ack) ([]byte, error) {
	w := wireAck{
		ReportID:  a.ReportID,
		Status:    a.Status,
		ThingName: a.ThingName,
	}
	if a.ErrorCode != "" || a.ErrorMessage != "" {
		w.StatusDetails = &wireStatusDetails{
			ErrorCode:    a.ErrorCode,
			ErrorMessage: a.ErrorMessage,
		}
	}
	return codec.Marshal(w)
}

// ReportID extracts the header report id from encoded report bytes.
func ReportID(data []byte) (uint64, error) {
	var r struct {
		Header struct {
			ReportID uint64 `cbor:"report_id"`
		} `cbor:"header"`
	}
	if err := codec.Unmarshal(data, &r); err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "decoding report header")
	}
	return r.Header.ReportID, nil
}
