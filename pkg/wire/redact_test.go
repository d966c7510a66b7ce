package wire

import "testing"

func TestRedact(t *testing.T) {
	msg := Message{
		KeyIPCResponseType: "getSystemStatusResponse",
		"networkKey":       "00112233445566778899aabbccddeeff",
		"panId":            uint64(0x1a2b),
		"devices": []any{
			Message{"eui64": "000d6f0003c04a7d", "linkKey": "secret"},
		},
		"config": map[string]any{"installCode": "abcd"},
	}

	red := Redact(msg)

	if red["networkKey"] != RedactedValue {
		t.Errorf("networkKey = %v", red["networkKey"])
	}
	if red["panId"] != uint64(0x1a2b) {
		t.Errorf("panId changed: %v", red["panId"])
	}
	dev := red["devices"].([]any)[0].(Message)
	if dev["linkKey"] != RedactedValue {
		t.Errorf("nested linkKey = %v", dev["linkKey"])
	}
	if dev["eui64"] != "000d6f0003c04a7d" {
		t.Errorf("eui64 changed: %v", dev["eui64"])
	}
	if red["config"].(map[string]any)["installCode"] != RedactedValue {
		t.Errorf("installCode not redacted")
	}

	// Original untouched
	if msg["networkKey"] == RedactedValue {
		t.Error("Redact modified its input")
	}
	if msg["devices"].([]any)[0].(Message)["linkKey"] != "secret" {
		t.Error("Redact modified nested input")
	}
}

func TestRedactNil(t *testing.T) {
	if Redact(nil) != nil {
		t.Error("Redact(nil) should be nil")
	}
}

func TestEUI64(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"000d6f0003c04a7d", 0x000d6f0003c04a7d, false},
		{"0x1", 1, false},
		{"FFFFFFFFFFFFFFFF", ^uint64(0), false},
		{"", 0, true},
		{"1ffffffffffffffff", 0, true},
		{"zz", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseEUI64(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEUI64(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEUI64(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}

	if s := FormatEUI64(0xd6f); s != "0000000000000d6f" {
		t.Errorf("FormatEUI64 = %s", s)
	}
}
