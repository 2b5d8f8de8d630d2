package deviceutils

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockRunner mocks the Runner interface. Expectations match the argument
// list as a single []string, e.g.
//
//	r.On("Run", mock.Anything, "", "lsblk", []string{"--json"}).Return(out, nil)
type MockRunner struct {
	mock.Mock
}

// Run mocks the Run method
func (m *MockRunner) Run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	if args == nil {
		args = []string{}
	}
	ret := m.Called(ctx, stdin, name, args)
	var out []byte
	if v := ret.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, ret.Error(1)
}
