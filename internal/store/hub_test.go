package store

import "testing"

func TestHubSubscribePublish(t *testing.T) {
	h := NewHub()

	var got []string
	cancel := h.Subscribe("user:1", func(topic string) { got = append(got, topic) })

	h.Publish("user:1")
	h.Publish("user:2")
	if len(got) != 1 || got[0] != "user:1" {
		t.Fatalf("Expected one event for user:1, got %v", got)
	}

	cancel()
	cancel() // second cancel is a no-op
	h.Publish("user:1")
	if len(got) != 1 {
		t.Errorf("Expected no events after cancel, got %v", got)
	}
	if len(h.subs) != 0 {
		t.Errorf("Expected empty subscription table, got %d topics", len(h.subs))
	}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()

	counts := map[string]int{}
	h.Subscribe("user:1", func(topic string) { counts[topic]++ })
	h.Subscribe("withdrawals:1", func(topic string) { counts[topic]++ })

	h.Broadcast()

	if counts["user:1"] != 1 || counts["withdrawals:1"] != 1 {
		t.Errorf("Expected every topic notified once, got %v", counts)
	}
}
