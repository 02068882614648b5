package relay

import (
	"encoding/json"
	"testing"
)

func rawMessage(msgType, payload string) *Message {
	return &Message{Type: msgType, Payload: json.RawMessage(payload)}
}

func TestParseJoinValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"code":"1234"}`, false},
		{"too short", `{"code":"12"}`, true},
		{"too long", `{"code":"12345"}`, true},
		{"missing", `{}`, true},
		{"garbage", `{"code":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJoin(rawMessage(TypeJoinRoom, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseJoin(%s) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
		})
	}
}

func TestParseOfferRequiresTargetAndSDP(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"target":"abc","sdp":"v=0"}`, false},
		{"no target", `{"sdp":"v=0"}`, true},
		{"no sdp", `{"target":"abc"}`, true},
		{"empty", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOffer(rawMessage(TypeOffer, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOffer(%s) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
		})
	}
}

func TestParseCandidateRejectsNull(t *testing.T) {
	if _, err := parseCandidate(rawMessage(TypeCandidate, `{"candidate":null}`)); err == nil {
		t.Fatal("null candidate accepted")
	}
	if _, err := parseCandidate(rawMessage(TypeCandidate, `{}`)); err == nil {
		t.Fatal("missing candidate accepted")
	}
	if _, err := parseCandidate(rawMessage(TypeCandidate, `{"candidate":{"candidate":"x"}}`)); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}
}

func TestParseStateRequiresState(t *testing.T) {
	if _, err := parseState(rawMessage(TypeStateChange, `{}`)); err == nil {
		t.Fatal("empty state accepted")
	}
	p, err := parseState(rawMessage(TypeStateChange, `{"state":"connected"}`))
	if err != nil {
		t.Fatalf("valid state rejected: %v", err)
	}
	if p.State != "connected" {
		t.Fatalf("state = %q", p.State)
	}
}

func TestMissingPayloadTreatedAsEmpty(t *testing.T) {
	// A join with no payload at all must fail validation, not decoding.
	_, err := parseJoin(&Message{Type: TypeJoinRoom})
	if err == nil {
		t.Fatal("join without payload accepted")
	}
}
