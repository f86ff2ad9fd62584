// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dialtone/api/schemas"
	"github.com/xkilldash9x/dialtone/internal/config"
)

// NewClient builds the fast and powerful Gemini clients from cfg and puts
// them behind a router.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no LLM API key configured (set llm.api_key, DIALTONE_LLM_API_KEY or GEMINI_API_KEY)")
	}

	fast, err := NewGeminiClient(ctx, cfg, cfg.DefaultFastModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client: %w", err)
	}
	powerful, err := NewGeminiClient(ctx, cfg, cfg.DefaultPowerfulModel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
	}
	return NewLLMRouter(logger, fast, powerful)
}
