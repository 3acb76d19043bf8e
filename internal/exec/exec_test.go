package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSExecutor_RunSuccess(t *testing.T) {
	ex := NewOSExecutor()
	res, err := ex.Run(context.Background(), "", "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", string(res.Stdout))
}

func TestOSExecutor_NonzeroExitIsNotAnError(t *testing.T) {
	ex := NewOSExecutor()
	res, err := ex.Run(context.Background(), "", "false")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestOSExecutor_MissingBinaryReturnsError(t *testing.T) {
	ex := NewOSExecutor()
	_, err := ex.Run(context.Background(), "", "r2bctl-definitely-not-a-real-binary")
	assert.Error(t, err)
}

func TestOSExecutor_EmptyArgvReturnsError(t *testing.T) {
	ex := NewOSExecutor()
	_, err := ex.Run(context.Background(), "")
	assert.Error(t, err)
}

func TestFakeExecutor_DispatchesRegisteredHandler(t *testing.T) {
	fx := NewFakeExecutor().On("rpm", func(ctx context.Context, dir string, argv []string) (*Result, error) {
		return &Result{Stdout: []byte("httpd-2.4.57-1.el9\n"), ExitCode: 0}, nil
	})

	res, err := fx.Run(context.Background(), "/host", "rpm", "-qa")
	require.NoError(t, err)
	assert.Equal(t, "httpd-2.4.57-1.el9\n", string(res.Stdout))
	assert.Equal(t, [][]string{{"rpm", "-qa"}}, fx.Calls)
}

func TestFakeExecutor_UnregisteredCommandReturnsNotFoundExitCode(t *testing.T) {
	fx := NewFakeExecutor()
	res, err := fx.Run(context.Background(), "", "nonexistent-tool")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
}

func TestFakeExecutor_EmptyArgvReturnsError(t *testing.T) {
	fx := NewFakeExecutor()
	_, err := fx.Run(context.Background(), "")
	assert.Error(t, err)
}
