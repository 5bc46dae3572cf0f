package queue

import (
	"encoding/json"
	"testing"
)

func TestClampBrokerPriority(t *testing.T) {
	cases := []struct {
		in   int
		want uint8
	}{
		{-1, 0},
		{0, 0},
		{5, 5},
		{10, 10},
		{99, 10},
	}
	for _, c := range cases {
		if got := clampBrokerPriority(c.in); got != c.want {
			t.Errorf("clampBrokerPriority(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	body, err := json.Marshal(&Message{JobID: "job1", Type: "catalog_import", Priority: 7})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := decodeMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.JobID != "job1" || msg.Type != "catalog_import" || msg.Priority != 7 {
		t.Errorf("unexpected message: %+v", msg)
	}

	if _, err := decodeMessage([]byte("{}")); err == nil {
		t.Error("expected error for message without job_id")
	}
	if _, err := decodeMessage([]byte("not json")); err == nil {
		t.Error("expected error for malformed body")
	}
}
