package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"questchain/core/events"
	"questchain/core/types"
)

func emitType(s *Stream, eventType string) {
	s.Emit(events.Wrap(&types.Event{Type: eventType, Attributes: map[string]string{}}))
}

func TestStreamHoldsEventsUntilPublish(t *testing.T) {
	s := NewStream()
	all, cancelAll := s.Subscribe("")
	defer cancelAll()
	campaigns, cancelCampaigns := s.Subscribe("campaign.")
	defer cancelCampaigns()

	emitType(s, "nft.minted")
	emitType(s, "campaign.created")
	require.Empty(t, all)

	s.Publish()
	first := <-all
	second := <-all
	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, "nft.minted", first.Type)
	require.Equal(t, uint64(2), second.Sequence)

	require.Len(t, campaigns, 1)
	require.Equal(t, "campaign.created", (<-campaigns).Type)

	emitType(s, "nft.minted")
	s.Drop()
	s.Publish()
	require.Empty(t, all)
}

func TestStreamDropsLaggingSubscriber(t *testing.T) {
	s := NewStream()
	updates, cancel := s.Subscribe("")
	for i := 0; i <= subscriberBuffer; i++ {
		emitType(s, "nft.minted")
	}
	s.Publish()
	require.Zero(t, s.Subscribers())

	received := 0
	for range updates {
		received++
	}
	require.Equal(t, subscriberBuffer, received)
	cancel()
}
