package progress

import (
	"encoding/json"
	"testing"

	"github.com/ncobase/jobstream/internal/job/structs"
)

func TestSnapshotKey(t *testing.T) {
	if got := snapshotKey("abc123"); got != "job:abc123" {
		t.Errorf("unexpected key: %s", got)
	}
}

func TestDecodeEvent(t *testing.T) {
	body, err := json.Marshal(&Event{
		JobID:    "job1",
		Owner:    "alice",
		Status:   structs.StatusProcessing,
		Progress: 40,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	event, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.JobID != "job1" || event.Status != structs.StatusProcessing || event.Progress != 40 {
		t.Errorf("unexpected event: %+v", event)
	}

	if _, err := DecodeEvent([]byte("{}")); err == nil {
		t.Error("expected error for event without job_id")
	}
	if _, err := DecodeEvent([]byte("not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
}
