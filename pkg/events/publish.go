package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager distributes classified frames to a set of watermill
// publishers. A publisher is subscribed to a topic; Publish serializes the
// frame and hands it to every publisher on that topic.
//
// The manager keeps a sequence number across outgoing frames, in the order
// they are handled by Publish.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

// Publish distributes a frame to all publishers subscribed to the topic.
// Serializing the payload to JSON is done by Publish itself.
func (s *PublisherManager) Publish(topic string, payload interface{}) error {
	// lock for the sequence number
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for _, pub := range s.Publishers[topic] {
		if err := pub.Publish(topic, msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
		}
	}

	return nil
}

func (s *PublisherManager) PublishBlind(topic string, payload interface{}) {
	if err := s.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
	}
}
