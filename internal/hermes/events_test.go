package hermes

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestParseReset(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"single session", `{"session_id": "33612345678"}`, "33612345678", false},
		{"all sessions", `{}`, "", false},
		{"empty payload", ``, "", false},
		{"invalid json", `{"session_id":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseReset([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if req.SessionID != tt.want {
				t.Errorf("SessionID = %q, want %q", req.SessionID, tt.want)
			}
		})
	}
}

func TestEscalationEventJSON(t *testing.T) {
	evt := NewEscalationEvent("wa-1", "OPCO_DELAI_DEPASSE", "admin", "ça fait 3 mois", "Je transmets")
	if _, err := uuid.Parse(evt.ID); err != nil {
		t.Errorf("ID is not a uuid: %q", evt.ID)
	}
	if evt.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["escalation_type"] != "admin" || fields["session_id"] != "wa-1" {
		t.Errorf("unexpected payload: %s", data)
	}
}
