package netmodel

import "github.com/rekrevs/xedgesim/internal/event"

// DirectNetworkModel provides zero-latency, lossless, FIFO, single-hop
// delivery: route_message returns the event unchanged except for its
// network_metadata, which is replaced by sent_time_us = delivery_time_us =
// time_us and latency_us=0.
type DirectNetworkModel struct{}

func NewDirectNetworkModel() *DirectNetworkModel { return &DirectNetworkModel{} }

func (m *DirectNetworkModel) RouteMessage(e event.Event) []event.Event {
	meta := map[string]any{
		event.MetaSentTimeUs:     e.TimeUs,
		event.MetaDeliveryTimeUs: e.TimeUs,
		event.MetaLatencyUs:      int64(0),
	}
	return []event.Event{e.WithNetMeta(meta)}
}

func (m *DirectNetworkModel) AdvanceTo(targetTimeUs int64) []event.Event { return nil }

func (m *DirectNetworkModel) Reset() {}
