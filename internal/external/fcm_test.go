package external

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gardenwatch/internal/types"
)

type mockMessaging struct {
	mock.Mock
}

func (m *mockMessaging) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func TestFCMSender_Send(t *testing.T) {
	client := new(mockMessaging)
	sender := newFCMSender(client, FCMConfig{TopicPrefix: "garden-"})

	client.On("Send", mock.Anything, mock.MatchedBy(func(m *messaging.Message) bool {
		return m.Topic == "garden-33600000001" &&
			m.Notification.Title == "Arrosage" &&
			m.Notification.Body == "Pensez à arroser." &&
			m.Android.Priority == "high"
	})).Return("projects/p/messages/1", nil).Once()

	require.NoError(t, sender.Send(context.Background(), "+33 6 00 00 00 01", "Arrosage", "Pensez à arroser."))
	client.AssertExpectations(t)
}

func TestFCMSender_SendErrors(t *testing.T) {
	client := new(mockMessaging)
	sender := newFCMSender(client, FCMConfig{})

	err := sender.Send(context.Background(), "n/a", "t", "b")
	requireAppCode(t, err, types.ErrCodeValidationMissingField)
	client.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	client.On("Send", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))
	err = sender.Send(context.Background(), "0600000001", "t", "b")
	requireAppCode(t, err, types.ErrCodeUpstreamDispatch)
}

func TestNewFCMSender_RequiresCredentials(t *testing.T) {
	_, err := NewFCMSender(context.Background(), FCMConfig{})
	require.Error(t, err)

	_, err = NewFCMSender(context.Background(), FCMConfig{CredentialsBase64: types.SecretString("%%%")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
