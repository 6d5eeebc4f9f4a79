package genai

import "context"

// MockClient implements the Client interface for testing.
type MockClient struct {
	GenerateContentFn func(ctx context.Context, model string, parts []Part, config *GenerateConfig) (string, error)
}

func (m *MockClient) GenerateContent(ctx context.Context, model string, parts []Part, config *GenerateConfig) (string, error) {
	if m.GenerateContentFn != nil {
		return m.GenerateContentFn(ctx, model, parts, config)
	}
	return "", nil
}
