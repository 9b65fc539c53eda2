package bus

import (
	"testing"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(EventTranscriptUpdate, func(ev Event) {
		file, _ := ev.Payload["sessionFile"].(string)
		got = append(got, "a:"+file)
	})
	b.Subscribe(EventTranscriptUpdate, func(ev Event) {
		got = append(got, "b")
	})

	b.Publish(TranscriptUpdate("/tmp/sessions/s1.jsonl"))

	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	if got[0] != "a:/tmp/sessions/s1.jsonl" {
		t.Errorf("first delivery = %q", got[0])
	}
	if got[1] != "b" {
		t.Errorf("second delivery = %q (order must follow registration)", got[1])
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	b := New()
	// Publishing with no subscribers must not panic.
	b.Publish(TranscriptUpdate("x.jsonl"))
}
