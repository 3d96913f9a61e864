package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"fleet-control/internal/fleet"
)

// Publisher pushes holding decisions, bunching events, and fleet-size
// recommendations to NATS for the actuation and telemetry collaborators.
type Publisher struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func New(url string, logSubjects bool, m PublisherMetrics) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("fleet-control"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Publisher{nc: nc, logSubjects: logSubjects, metrics: m}, nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// HoldingMessage carries one cycle's holding decision for a route.
type HoldingMessage struct {
	RouteID   string                `json:"routeId"`
	Timestamp time.Time             `json:"timestamp"`
	Cycle     uint64                `json:"cycle"`
	Degraded  bool                  `json:"degraded"` // true when the solver fell back to zero holding
	Holds     fleet.HoldingDecision `json:"holdsSec"`
}

// BunchingMessage carries the bunching events found on a route in one cycle.
type BunchingMessage struct {
	RouteID   string                `json:"routeId"`
	Timestamp time.Time             `json:"timestamp"`
	Events    []fleet.BunchingEvent `json:"events"`
}

// DispatchMessage carries a fleet-size recommendation.
type DispatchMessage struct {
	Timestamp        time.Time `json:"timestamp"`
	RecommendedBuses int       `json:"recommendedBuses"`
	AvailableBuses   int       `json:"availableBuses"`
	DemandPerHour    float64   `json:"demandPerHour"`
	ForecastPerHour  float64   `json:"forecastPerHour"`
}

func (p *Publisher) PublishHolding(msg HoldingMessage) error {
	return p.publish(fmt.Sprintf("holding.%s", subjectToken(msg.RouteID)), msg)
}

func (p *Publisher) PublishBunching(msg BunchingMessage) error {
	return p.publish(fmt.Sprintf("bunching.%s", subjectToken(msg.RouteID)), msg)
}

func (p *Publisher) PublishDispatch(msg DispatchMessage) error {
	return p.publish("dispatch.fleet", msg)
}

func (p *Publisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
