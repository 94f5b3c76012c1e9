package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	mock.Mock
}

func (m *mockSSM) GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	args := m.Called(ctx, params)
	if fn, ok := args.Get(0).(func(context.Context, *ssm.GetParametersInput) *ssm.GetParametersOutput); ok {
		return fn(ctx, params), args.Error(1)
	}
	if out := args.Get(0); out != nil {
		return out.(*ssm.GetParametersOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

// echoParameters answers every requested name with "value-of:<name>".
func echoParameters(in *ssm.GetParametersInput) *ssm.GetParametersOutput {
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(n), Value: aws.String("value-of:" + n)})
	}
	return out
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
}

func TestSSMProvider_BatchesAndDecrypts(t *testing.T) {
	client := new(mockSSM)
	client.On("GetParameters", mock.Anything, mock.MatchedBy(func(in *ssm.GetParametersInput) bool {
		return aws.ToBool(in.WithDecryption) && len(in.Names) <= ssmMaxBatchSize
	})).Return(func(_ context.Context, in *ssm.GetParametersInput) *ssm.GetParametersOutput {
		return echoParameters(in)
	}, nil)

	keys := make([]string, 0, 13)
	for i := 0; i < 12; i++ {
		keys = append(keys, "/prod/gardenwatch/key"+string(rune('a'+i)))
	}
	keys = append(keys, keys[0]) // duplicate

	got, err := newSSMProviderWithClient(client).GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, 12)
	assert.Equal(t, "value-of:/prod/gardenwatch/keya", got["/prod/gardenwatch/keya"])
	client.AssertNumberOfCalls(t, "GetParameters", 2)
}

func TestSSMProvider_InvalidParameters(t *testing.T) {
	client := new(mockSSM)
	client.On("GetParameters", mock.Anything, mock.Anything).
		Return(&ssm.GetParametersOutput{InvalidParameters: []string{"/prod/missing"}}, nil)

	_, err := newSSMProviderWithClient(client).GetParametersBatch(context.Background(), []string{"/prod/missing"})
	assert.ErrorContains(t, err, "/prod/missing")
}

func TestSSMProvider_APIError(t *testing.T) {
	client := new(mockSSM)
	client.On("GetParameters", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied"))

	_, err := newSSMProviderWithClient(client).GetParametersBatch(context.Background(), []string{"/prod/a"})
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	client := new(mockSSM)
	got, err := newSSMProviderWithClient(client).GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	client.AssertNotCalled(t, "GetParameters", mock.Anything, mock.Anything)
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSSMProviderWithClient(new(mockSSM)).GetParametersBatch(ctx, []string{"/prod/a"})
	assert.ErrorIs(t, err, context.Canceled)
}
