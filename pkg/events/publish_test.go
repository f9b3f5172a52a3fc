package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherManagerFanOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	msgs, err := pubSub.Subscribe(ctx, "chat.chunk")
	require.NoError(t, err)

	pm := NewPublisherManager()
	pm.SubscribePublisher("chat.chunk", pubSub)

	require.NoError(t, pm.Publish("chat.chunk", NewChunkFrame(FrameMetadata{SessionID: "s1"})))
	require.NoError(t, pm.Publish("chat.chunk", NewChunkFrame(FrameMetadata{SessionID: "s1"})))

	first := <-msgs
	first.Ack()
	assert.Equal(t, "0", first.Metadata.Get("sequence_number"))

	second := <-msgs
	second.Ack()
	assert.Equal(t, "1", second.Metadata.Get("sequence_number"))

	frame, err := DecodeFrame(second.Payload)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeChunk, frame.Type())
	assert.Equal(t, "s1", frame.Metadata().SessionID)
}
