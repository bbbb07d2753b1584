package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ready(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{
			name:       "storage ready",
			pingErr:    nil,
			wantStatus: http.StatusOK,
		},
		{
			name:       "storage unavailable",
			pingErr:    assert.AnError,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pinger := new(MockPinger)
			pinger.On("Ready", mock.Anything).Return(tt.pingErr).Once()

			handler := New(newNoopLogger(), pinger)

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"status":"OK"`)
			} else {
				assert.Contains(t, rec.Body.String(), "storage is not ready")
			}
			pinger.AssertExpectations(t)
		})
	}
}
