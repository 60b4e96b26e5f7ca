package pubsub

import (
	"strings"

	"github.com/google/uuid"
)

// AnyTopic subscribes to every topic.
const AnyTopic = "*"

// Subscription is a listener for one or more event topics.
type Subscription struct {
	ID     string
	Topics map[string]struct{}
}

// NewSubscription returns a subscription for the given comma separated list
// of topics. An empty list subscribes to any topic.
func NewSubscription(topics string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		Topics: make(map[string]struct{}),
	}
	for _, t := range strings.Split(topics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			sub.Topics[t] = struct{}{}
		}
	}
	if len(sub.Topics) <= 0 {
		sub.Topics[AnyTopic] = struct{}{}
	}
	return sub
}

func (s *Subscription) IsSubscribedTo(topic string) bool {
	if _, ok := s.Topics[AnyTopic]; ok {
		return true
	}
	_, ok := s.Topics[topic]
	return ok
}
