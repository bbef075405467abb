package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	first, unsubFirst := bus.Subscribe()
	defer unsubFirst()
	second, unsubSecond := bus.Subscribe()
	defer unsubSecond()

	bus.Publish(New(TypeLoginSucceeded, OutcomeSuccess, "u1", "u1"))

	for _, ch := range []<-chan Event{first, second} {
		select {
		case e := <-ch:
			require.Equal(t, TypeLoginSucceeded, e.Type)
			require.Equal(t, "u1", e.SubjectID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusUnsubscribeClosesChannelOnce(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()

	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after everyone left must not panic.
	bus.Publish(New(TypeLogout, OutcomeSuccess, "", ""))
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()

	bus := NewBusWithBuffer(1)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.Publish(New(TypeLoginFailed, OutcomeFailure, "", "a"))
	bus.Publish(New(TypeLoginFailed, OutcomeFailure, "", "b"))

	e := <-ch
	require.Equal(t, "a", e.SubjectID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second event %v", extra)
	default:
	}
	require.EqualValues(t, 1, bus.Dropped())
}

func TestBusCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	bus.Publish(New(TypeLogout, OutcomeSuccess, "u1", "u1"))
	bus.Close()
	bus.Close()

	e, ok := <-ch
	require.True(t, ok)
	require.Equal(t, TypeLogout, e.Type)
	_, ok = <-ch
	require.False(t, ok)
	unsubscribe()

	late, _ := bus.Subscribe()
	_, ok = <-late
	require.False(t, ok)
	bus.Publish(New(TypeLogout, OutcomeSuccess, "", ""))
}

func TestEventWithCopiesPayload(t *testing.T) {
	t.Parallel()

	base := New(TypeRoleAssigned, OutcomeSuccess, "admin", "u1").With("role", "editor")
	derived := base.With("granted_by", "admin")

	require.Len(t, base.Payload, 1)
	require.Len(t, derived.Payload, 2)
	require.Equal(t, "editor", derived.Payload["role"])
}
