package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Attendance("rec-1")))

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := <-messages
	require.Equal(t, TypeAttendance, msg.Type)
	require.Equal(t, "rec-1", string(msg.Body))
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	msg := Attendance("rec-2")
	out, err := deserialize(serialize(msg))
	require.NoError(t, err)
	require.Equal(t, msg, out)
}
