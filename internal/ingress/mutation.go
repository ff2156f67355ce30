// Package ingress accepts mutation notices from the CRUD services and turns
// them into hub publishes.
package ingress

import (
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/lmsedutechkpr/Slate-sub000/internal/realtime"
)

var ErrEmptyTopic = errors.New("mutation topic is required")

// Mutation is the message a CRUD handler emits after its write commits.
type Mutation struct {
    Topic   realtime.Topic     `json:"topic"`
    Payload json.RawMessage    `json:"payload,omitempty"`
    Scope   realtime.ScopeSpec `json:"scope"`
}

// Decode parses and validates one mutation.
func Decode(data []byte) (Mutation, error) {
    var m Mutation
    if err := json.Unmarshal(data, &m); err != nil {
        return Mutation{}, fmt.Errorf("decode mutation: %w", err)
    }
    if _, err := m.Resolve(); err != nil {
        return Mutation{}, err
    }
    return m, nil
}

// Resolve checks the topic and returns the delivery scope.
func (m Mutation) Resolve() (realtime.Scope, error) {
    if strings.TrimSpace(string(m.Topic)) == "" {
        return realtime.Scope{}, ErrEmptyTopic
    }
    return m.Scope.Resolve()
}

// Apply publishes m and returns the number of sessions it was queued for.
func (m Mutation) Apply(p realtime.Publisher) (int, error) {
    scope, err := m.Resolve()
    if err != nil {
        return 0, err
    }
    var payload any
    if len(m.Payload) > 0 {
        payload = m.Payload
    }
    return p.Publish(m.Topic, payload, scope), nil
}
