package remote

// ServerBuilderOption is a functional option for configuring a Server.
type ServerBuilderOption func(*Server)

// WithClientBuffer sets how many messages may queue per client before reports are dropped.
// Defaults to 64.
func WithClientBuffer(n int) ServerBuilderOption {
	return func(s *Server) {
		if n > 0 {
			s.buffer = n
		}
	}
}
