package health

// Service reports liveness plus the configured backing services, so a probe
// can tell a real deployment from one degraded to its fallbacks.
type Service struct {
	storeType   string
	llmProvider string
}

// NewService constructs a health service describing the active configuration.
func NewService(storeType, llmProvider string) *Service {
	return &Service{storeType: storeType, llmProvider: llmProvider}
}

// Status returns the health payload.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"ok":           true,
		"historyStore": s.storeType,
		"llmProvider":  s.llmProvider,
	}
}
