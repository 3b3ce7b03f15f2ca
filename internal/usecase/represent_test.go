package usecase

import (
	"context"
	"testing"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

func TestRepresentAllRequeuesLiveContent(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	lock := &fakeLock{granted: true}
	uc := NewRepresentUsecase(store, downstream.NewSync(queue, nil), lock, nil)

	store.addEdition(&domain.Edition{ContentID: "c1", Locale: "en", State: domain.StatePublished})
	store.addEdition(&domain.Edition{ContentID: "c2", Locale: "en", State: domain.StatePublished})
	store.addEdition(&domain.Edition{ContentID: "c3", Locale: "en", State: domain.StateDraft})

	if err := uc.RepresentAll(context.Background()); err != nil {
		t.Fatalf("represent failed: %v", err)
	}

	low := queue.byChannel(downstream.ChannelLiveLow)
	if len(low) != 2 {
		t.Fatalf("expected the two live editions on the low channel, got %+v", queue.jobs)
	}
	for _, payload := range low {
		if payload.MessageQueueUpdateType != "republish" {
			t.Fatalf("expected republish payloads, got %+v", payload)
		}
		if payload.UpdateDependencies == nil || *payload.UpdateDependencies {
			t.Fatal("a represent pass must not request dependency re-resolution")
		}
		if payload.PayloadVersion != 1 {
			t.Fatalf("all payloads share the pass's event version, got %d", payload.PayloadVersion)
		}
	}
	if len(queue.byChannel(downstream.ChannelLiveHigh)) != 0 {
		t.Fatal("a represent pass must never use the high priority channel")
	}
	if len(store.events) != 1 || store.events[0] != "RepresentDownstream" {
		t.Fatalf("expected one RepresentDownstream event, got %v", store.events)
	}
}

func TestRepresentAllLockContention(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	lock := &fakeLock{granted: false}
	uc := NewRepresentUsecase(store, downstream.NewSync(queue, nil), lock, nil)

	store.addEdition(&domain.Edition{ContentID: "c1", Locale: "en", State: domain.StatePublished})

	if err := uc.RepresentAll(context.Background()); err != nil {
		t.Fatalf("lock contention must not fail the command: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("a skipped pass must not enqueue anything")
	}
	if len(lock.acquired) != 1 || lock.acquired[0] != RepresentLockName {
		t.Fatalf("expected one lock attempt, got %v", lock.acquired)
	}
}
