package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockJetStream records published messages.
type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func newTestPublisher(js jetStream) *Publisher {
	return &Publisher{
		logger:  zap.NewNop(),
		js:      js,
		subject: "evt.auth.lifecycle.v1",
		service: "authgate",
	}
}

func TestPublisher_AuthLost(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	require.NoError(t, p.AuthLost())
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.auth.lifecycle.v1", msg.Subject)
	assert.Equal(t, TypeAuthLost, msg.Header.Get("event_type"))
	assert.Equal(t, "authgate", msg.Header.Get("service"))

	var env Event
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, TypeAuthLost, env.Type)
	assert.Equal(t, "authgate", env.Service)
	assert.False(t, env.Timestamp.IsZero())
}

func TestPublisher_EventTypes(t *testing.T) {
	js := &mockJetStream{}
	p := newTestPublisher(js)

	require.NoError(t, p.LoginSucceeded())
	require.NoError(t, p.TokenRefreshed())
	require.NoError(t, p.AuthLost())

	require.Len(t, js.published, 3)
	assert.Equal(t, TypeLogin, js.published[0].Header.Get("event_type"))
	assert.Equal(t, TypeTokenRefreshed, js.published[1].Header.Get("event_type"))
	assert.Equal(t, TypeAuthLost, js.published[2].Header.Get("event_type"))
}

func TestPublisher_PublishFailure(t *testing.T) {
	js := &mockJetStream{fail: true}
	p := newTestPublisher(js)

	err := p.AuthLost()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock publish error")
}
