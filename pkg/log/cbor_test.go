package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeDeterministic(t *testing.T) {
	event := Event{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Category:  CategoryError,
		Error:     &ErrorEventData{Message: "boom", Context: "send"},
	}

	a, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	b, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	code := -6
	events := []Event{
		{Timestamp: time.Now(), Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntityWorker, NewState: "running"}},
		{Timestamp: time.Now(), Category: CategoryError, Error: &ErrorEventData{Message: "rejected", Code: &code, Context: "ack"}},
	}
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	var first, second Event
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if err := dec.Decode(&second); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if first.StateChange == nil || first.StateChange.NewState != "running" {
		t.Errorf("first.StateChange = %+v", first.StateChange)
	}
	if second.Error == nil || second.Error.Code == nil || *second.Error.Code != -6 {
		t.Errorf("second.Error = %+v", second.Error)
	}
}

func TestDecodeEventInvalid(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}
}
