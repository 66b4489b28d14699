package emitter

import (
	"testing"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/config"
)

func TestNewReturnsNoopSinkWhenUnconfigured(t *testing.T) {
	sink := New(config.MQTT{})
	if _, ok := sink.(NoopSink); !ok {
		t.Fatalf("expected NoopSink when no broker configured, got %T", sink)
	}
}

func TestNoopSinkNeverBlocksOrPanics(t *testing.T) {
	sink := NoopSink{}
	z := &catalog.Zone{Name: "Z", Occupied: true}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("NoopSink.Publish panicked: %v", r)
		}
	}()
	for i := 0; i < 1000; i++ {
		sink.Publish(z)
	}
	if sink.Dropped() != 0 {
		t.Fatalf("NoopSink should never report drops")
	}
	sink.Close()
}
