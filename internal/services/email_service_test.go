package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSESClient implements SESAPI for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	Inputs        []*ses.SendEmailInput
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.Inputs = append(m.Inputs, params)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESNotifier_PasswordResetLink(t *testing.T) {
	client := &MockSESClient{}
	n := NewSESNotifierWithClient(client, "noreply@cyberarcade.dev", "https://cyberarcade.dev", testLogger())

	err := n.Notify(context.Background(), testIdentifier, models.PasswordResetIssued{
		Token:     "abc_DEF-123",
		ExpiresAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	require.NoError(t, err)
	require.Len(t, client.Inputs, 1)
	input := client.Inputs[0]
	assert.Equal(t, "noreply@cyberarcade.dev", *input.Source)
	assert.Equal(t, []string{testIdentifier}, input.Destination.ToAddresses)
	assert.Contains(t, *input.Message.Body.Text.Data, "https://cyberarcade.dev/reset-password?token=abc_DEF-123")
	assert.Contains(t, *input.Message.Body.Html.Data, "https://cyberarcade.dev/reset-password?token=abc_DEF-123")
}

func TestSESNotifier_LockoutMessages(t *testing.T) {
	expires := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		n        models.Notification
		contains string
	}{
		{"temporary", models.LockoutEngaged{Stage: 1, ExpiresAt: &expires}, "try again after"},
		{"permanent", models.LockoutEngaged{Stage: 3, Permanent: true}, "Contact an administrator"},
		{"unlocked", models.AccountUnlocked{By: "admin@example.com", At: expires}, "unlocked your account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockSESClient{}
			n := NewSESNotifierWithClient(client, "noreply@cyberarcade.dev", "https://cyberarcade.dev", testLogger())

			require.NoError(t, n.Notify(context.Background(), testIdentifier, tt.n))
			require.Len(t, client.Inputs, 1)
			assert.True(t, strings.Contains(*client.Inputs[0].Message.Body.Text.Data, tt.contains))
		})
	}
}

func TestSESNotifier_SendFailure(t *testing.T) {
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	n := NewSESNotifierWithClient(client, "noreply@cyberarcade.dev", "https://cyberarcade.dev", testLogger())

	err := n.Notify(context.Background(), testIdentifier, models.AccountUnlocked{By: "a", At: time.Now()})

	assert.Error(t, err)
}
