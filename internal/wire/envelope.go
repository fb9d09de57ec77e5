// Package wire defines the JSON envelope protocol spoken between the
// distribution hub and synchronization agents. Every frame on the realtime
// channel is `{"type": ..., "data": {...}}`; the set of types is closed, so
// dispatch sites can switch exhaustively over the Message implementations.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signalsfoundry/skywatch/model"
)

var (
	// ErrMalformedEnvelope indicates a frame that could not be parsed.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnknownEnvelope indicates a frame whose type tag is not part of
	// the protocol.
	ErrUnknownEnvelope = errors.New("unknown envelope type")
)

// Envelope type tags, exactly as they appear on the wire.
const (
	TypePing                 = "ping"
	TypeSubscribe            = "subscribe"
	TypeConnection           = "connection"
	TypeAircraftUpdate       = "aircraft_update"
	TypeSingleAircraftUpdate = "single_aircraft_update"
	TypeNotification         = "notification"
	TypeDataSourceUpdate     = "data_source_update"
	TypeCollisionAlert       = "collision_alert"
	TypeAirspaceAlert        = "airspace_alert"
	TypePong                 = "pong"
)

// Message is one typed envelope payload. The method set is unexported so
// the union stays closed: only the types below can cross the channel.
type Message interface {
	envelopeType() string
}

// Ping is the client-side liveness probe.
type Ping struct{}

// Subscribe declares interest in a channel. Subscriptions are recorded on
// the session but do not currently filter broadcast delivery; every
// registered session receives every broadcast.
type Subscribe struct {
	Channel string `json:"channel"`
}

// Connection acknowledges a freshly registered session.
type Connection struct {
	Status string `json:"status"`
}

// AircraftUpdate carries a full aircraft snapshot; agents replace their
// entire local cache with it.
type AircraftUpdate struct {
	Aircraft []model.Aircraft `json:"aircraft"`
}

// SingleAircraftUpdate carries one changed aircraft record.
type SingleAircraftUpdate struct {
	Aircraft model.Aircraft `json:"aircraft"`
}

// NotificationEvent carries a created or updated notification record.
type NotificationEvent struct {
	Notification model.Notification `json:"notification"`
}

// DataSourceUpdate carries the current data source set.
type DataSourceUpdate struct {
	DataSources []model.DataSource `json:"dataSources"`
}

// CollisionAlert reports one pairwise collision-risk finding.
type CollisionAlert struct {
	AircraftIDs     [2]int  `json:"aircraftIds"`
	TimeToCollision float64 `json:"timeToCollision"`
	Severity        string  `json:"severity"`
}

// AirspaceAlert reports one restriction containment violation.
type AirspaceAlert struct {
	AircraftID      int    `json:"aircraftId"`
	RestrictionID   int    `json:"restrictionId"`
	RestrictionType string `json:"restrictionType"`
}

// Pong answers a Ping with the server's current timestamp in Unix
// milliseconds.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

func (Ping) envelopeType() string                 { return TypePing }
func (Subscribe) envelopeType() string            { return TypeSubscribe }
func (Connection) envelopeType() string           { return TypeConnection }
func (AircraftUpdate) envelopeType() string       { return TypeAircraftUpdate }
func (SingleAircraftUpdate) envelopeType() string { return TypeSingleAircraftUpdate }
func (NotificationEvent) envelopeType() string    { return TypeNotification }
func (DataSourceUpdate) envelopeType() string     { return TypeDataSourceUpdate }
func (CollisionAlert) envelopeType() string       { return TypeCollisionAlert }
func (AirspaceAlert) envelopeType() string        { return TypeAirspaceAlert }
func (Pong) envelopeType() string                 { return TypePong }

// TypeOf returns the wire tag for a message.
func TypeOf(m Message) string {
	if m == nil {
		return ""
	}
	return m.envelopeType()
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps a message in its `{type, data}` envelope.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformedEnvelope)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.envelopeType(), err)
	}
	return json.Marshal(envelope{Type: m.envelopeType(), Data: data})
}

// Decode parses a raw frame into its typed message. Unparseable frames
// return ErrMalformedEnvelope; well-formed frames with a tag outside the
// protocol return ErrUnknownEnvelope.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type tag", ErrMalformedEnvelope)
	}

	var msg Message
	switch env.Type {
	case TypePing:
		msg = &Ping{}
	case TypeSubscribe:
		msg = &Subscribe{}
	case TypeConnection:
		msg = &Connection{}
	case TypeAircraftUpdate:
		msg = &AircraftUpdate{}
	case TypeSingleAircraftUpdate:
		msg = &SingleAircraftUpdate{}
	case TypeNotification:
		msg = &NotificationEvent{}
	case TypeDataSourceUpdate:
		msg = &DataSourceUpdate{}
	case TypeCollisionAlert:
		msg = &CollisionAlert{}
	case TypeAirspaceAlert:
		msg = &AirspaceAlert{}
	case TypePong:
		msg = &Pong{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, env.Type)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, msg); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, env.Type, err)
		}
	}
	return deref(msg), nil
}

// deref returns the value form so dispatch sites can switch on concrete
// value types.
func deref(m Message) Message {
	switch v := m.(type) {
	case *Ping:
		return *v
	case *Subscribe:
		return *v
	case *Connection:
		return *v
	case *AircraftUpdate:
		return *v
	case *SingleAircraftUpdate:
		return *v
	case *NotificationEvent:
		return *v
	case *DataSourceUpdate:
		return *v
	case *CollisionAlert:
		return *v
	case *AirspaceAlert:
		return *v
	case *Pong:
		return *v
	default:
		return m
	}
}
