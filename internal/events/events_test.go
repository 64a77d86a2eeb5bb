package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev Event) error {
	return m.Called(ctx, ev).Error(0)
}

func sampleEvent() Event {
	return Event{
		Resource:       "expenses",
		OrganisationID: "org-1",
		RecordID:       "rec-1",
		Code:           "1234567",
		Entry:          models.NewAuditLog("user-1", models.ActionCreate, "Expense created", ""),
	}
}

func TestTopic(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, "fleet/org-1/expenses", Topic("fleet", ev))
	assert.Equal(t, "fleet/org-1/expenses", Topic("/fleet/", ev))
	assert.Equal(t, "org-1/expenses", Topic("", ev))
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := new(MockClient)
	client.On("Publish", "fleet/org-1/expenses", byte(1), false, mock.MatchedBy(func(payload interface{}) bool {
		var decoded map[string]interface{}
		if err := json.Unmarshal(payload.([]byte), &decoded); err != nil {
			return false
		}
		entry := decoded["entry"].(map[string]interface{})
		return decoded["code"] == "1234567" && entry["action"] == "create"
	})).Return(doneToken(nil))

	p := newMQTTPublisher(client, "fleet")
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	client.AssertExpectations(t)
}

func TestMQTTPublisher_BrokerError(t *testing.T) {
	client := new(MockClient)
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(doneToken(errors.New("not connected")))

	p := newMQTTPublisher(client, "fleet")
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "not connected")
}

func TestMQTTPublisher_Timeout(t *testing.T) {
	client := new(MockClient)
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&fakeToken{done: make(chan struct{})})

	p := newMQTTPublisher(client, "fleet")
	p.timeout = 10 * time.Millisecond
	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "timed out")
}

func TestEmit_SwallowsErrors(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("boom"))

	assert.NotPanics(t, func() {
		Emit(context.Background(), pub, sampleEvent())
		Emit(context.Background(), nil, sampleEvent())
	})
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), sampleEvent()))
}
