package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		if err != nil {
			t.Fatalf("New(%v) error = %v", development, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned a nil logger", development)
		}
		logger.Debug("fetch pipeline logger online")
		_ = logger.Sync()
	}
}
