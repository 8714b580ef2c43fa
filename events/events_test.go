package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/susuprotocol/rosca/events"
)

func TestRecorder(t *testing.T) {
	rec := events.NewRecorder()
	ctx := context.Background()

	rec.Publish(ctx, "circle.created", 1)
	rec.Publish(ctx, "member.joined", "alice")
	rec.Publish(ctx, "member.joined", "bob")

	require.Len(t, rec.Events(), 3)

	joined := rec.ByTopic("member.joined")
	require.Len(t, joined, 2)
	require.Equal(t, "alice", joined[0].Payload)
	require.Equal(t, "bob", joined[1].Payload)

	require.Empty(t, rec.ByTopic("nope"))
}

func TestMultiFansOut(t *testing.T) {
	a := events.NewRecorder()
	b := events.NewRecorder()
	sink := events.Multi{events.NopSink{}, a, b}

	sink.Publish(context.Background(), "circle.dissolved", 7)

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	require.Equal(t, "circle.dissolved", a.Events()[0].Topic)
}
