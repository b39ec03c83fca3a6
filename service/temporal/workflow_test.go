package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func testEmailInput() PurchaseEmailInput {
	uri := "https://ipfs.example/ipfs/meta"
	return PurchaseEmailInput{
		TransactionReference: "sig123",
		To:                   "alice@example.com",
		ArtifactID:           "abc123",
		ArtifactURI:          &uri,
		ImageURI:             "https://ipfs.example/ipfs/img",
	}
}

func TestPurchaseEmailWorkflow(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SendPurchaseEmail)
	env.OnActivity(activities.SendPurchaseEmail, mock.Anything, testEmailInput()).
		Return(&SendPurchaseEmailResult{SentAt: env.Now()}, nil).Once()

	env.ExecuteWorkflow(PurchaseEmailWorkflow, testEmailInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result PurchaseEmailResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "sig123", result.TransactionReference)
	assert.Equal(t, "sent", result.Status)
	assert.Nil(t, result.Error)
	env.AssertExpectations(t)
}

func TestPurchaseEmailWorkflow_NoRecipient(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SendPurchaseEmail)

	input := testEmailInput()
	input.To = ""
	env.ExecuteWorkflow(PurchaseEmailWorkflow, input)

	require.NoError(t, env.GetWorkflowError())
	var result PurchaseEmailResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "skipped", result.Status)
}

func TestPurchaseEmailWorkflow_RetriesTransientFailures(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SendPurchaseEmail)

	callCount := 0
	env.OnActivity(activities.SendPurchaseEmail, mock.Anything, mock.Anything).Return(
		func(_ context.Context, _ PurchaseEmailInput) (*SendPurchaseEmailResult, error) {
			callCount++
			if callCount < 3 {
				return nil, errors.New("421 service not available")
			}
			return &SendPurchaseEmailResult{}, nil
		})

	env.ExecuteWorkflow(PurchaseEmailWorkflow, testEmailInput())

	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, callCount)
}

func TestPurchaseEmailWorkflow_NotConfiguredIsNotRetried(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SendPurchaseEmail)

	callCount := 0
	env.OnActivity(activities.SendPurchaseEmail, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCount++
	}).Return(nil, temporal.NewNonRetryableApplicationError("email is not configured", ErrTypeEmailNotConfigured, nil))

	env.ExecuteWorkflow(PurchaseEmailWorkflow, testEmailInput())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email is not configured")
	assert.Equal(t, 1, callCount)
}
