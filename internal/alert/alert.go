// Package alert emits notifications about service connectivity and
// liveness transitions.
package alert

import (
	"time"
)

const (
	TopicConnectionLost      = "service.connection_lost"
	TopicConnectionRecovered = "service.connection_recovered"
	TopicServiceDown         = "service.down"
	TopicServiceUp           = "service.up"
)

// Alert is any JSON-encodable notification payload.
type Alert interface {
	AlertTopic() string
}

type ServiceRef struct {
	RegistrationID string `json:"registration_id,omitempty"`
	Host           string `json:"host"`
	Binary         string `json:"binary"`
	Topic          string `json:"topic"`
}

type ConnectivityData struct {
	Service ServiceRef `json:"service"`
	Error   string     `json:"error,omitempty"`
}

// ConnectivityAlert is raised by a service when its registry store becomes
// unreachable and again when it recovers.
type ConnectivityAlert struct {
	Topic     string           `json:"topic"`
	Timestamp time.Time        `json:"timestamp"`
	Data      ConnectivityData `json:"data"`
}

func (a ConnectivityAlert) AlertTopic() string { return a.Topic }

func NewConnectionLostAlert(service ServiceRef, err error) ConnectivityAlert {
	data := ConnectivityData{Service: service}
	if err != nil {
		data.Error = err.Error()
	}
	return ConnectivityAlert{
		Topic:     TopicConnectionLost,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewConnectionRecoveredAlert(service ServiceRef) ConnectivityAlert {
	return ConnectivityAlert{
		Topic:     TopicConnectionRecovered,
		Timestamp: time.Now(),
		Data:      ConnectivityData{Service: service},
	}
}

type LivenessData struct {
	Service   ServiceRef `json:"service"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LivenessAlert is raised by a host monitor when another service's
// heartbeat goes stale or resumes.
type LivenessAlert struct {
	Topic     string       `json:"topic"`
	Timestamp time.Time    `json:"timestamp"`
	Data      LivenessData `json:"data"`
}

func (a LivenessAlert) AlertTopic() string { return a.Topic }

func NewLivenessAlert(up bool, service ServiceRef, updatedAt time.Time) LivenessAlert {
	topic := TopicServiceDown
	if up {
		topic = TopicServiceUp
	}
	return LivenessAlert{
		Topic:     topic,
		Timestamp: time.Now(),
		Data:      LivenessData{Service: service, UpdatedAt: updatedAt},
	}
}
