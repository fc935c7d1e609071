package bus

import "testing"

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe()
	defer unsubA()
	c, unsubC := b.Subscribe()
	defer unsubC()

	n := b.Publish(Message{Topic: TopicPinnedChanged, Origin: "popup"})
	if n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	for _, ch := range []<-chan Message{a, c} {
		msg := <-ch
		if msg.Topic != TopicPinnedChanged || msg.SentAt.IsZero() {
			t.Errorf("unexpected message %+v", msg)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < 64; i++ {
		b.Publish(Message{Topic: TopicSliceChanged})
	}
	if n := b.Publish(Message{Topic: TopicSliceChanged}); n != 0 {
		t.Errorf("full subscriber accepted message, delivered=%d", n)
	}
}

func TestClose(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	late, _ := b.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return closed channel")
	}
	if n := b.Publish(Message{Topic: TopicSliceChanged}); n != 0 {
		t.Errorf("delivered=%d after close", n)
	}
}
