package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes relay metrics. Construct one per process with the default
// registerer; tests pass their own registry to avoid duplicate registration.
type Collector struct {
	participantsConnected prometheus.Gauge
	roomsActive           prometheus.Gauge
	screenSharesActive    prometheus.Gauge

	messagesRoutedTotal  *prometheus.CounterVec
	messagesDroppedTotal prometheus.Counter
	broadcastsTotal      prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		participantsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vroom_participants_connected",
			Help: "Number of participants currently connected to the relay",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vroom_rooms_active",
			Help: "Number of rooms with at least one participant",
		}),

		screenSharesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vroom_screen_shares_active",
			Help: "Number of screen-share slots currently held across all rooms",
		}),

		messagesRoutedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vroom_messages_routed_total",
			Help: "Signaling messages routed, by message type",
		}, []string{"type"}),

		messagesDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vroom_messages_dropped_total",
			Help: "Targeted messages dropped because the recipient was gone",
		}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vroom_broadcasts_total",
			Help: "Room-wide broadcast fan-outs performed",
		}),
	}
}

func (c *Collector) ParticipantConnected()    { c.participantsConnected.Inc() }
func (c *Collector) ParticipantDisconnected() { c.participantsConnected.Dec() }
func (c *Collector) SetRoomsActive(n int)     { c.roomsActive.Set(float64(n)) }
func (c *Collector) ShareGranted()            { c.screenSharesActive.Inc() }
func (c *Collector) ShareReleased()           { c.screenSharesActive.Dec() }

func (c *Collector) MessageRouted(messageType string) {
	c.messagesRoutedTotal.WithLabelValues(messageType).Inc()
}

func (c *Collector) MessageDropped() { c.messagesDroppedTotal.Inc() }
func (c *Collector) Broadcast()      { c.broadcastsTotal.Inc() }
