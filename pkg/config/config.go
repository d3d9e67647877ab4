package config

// Config is the umbrella configuration object for the engine.
// It is the primary object returned by Initialize() and threaded through
// the service, agent, and API layers.
type Config struct {
	LLM      *LLMConfig
	Server   *ServerConfig
	Session  *SessionConfig
	Engine   *EngineConfig
	Queue    *QueueConfig
	Slack    *SlackConfig
	Playbook *PlaybookConfig
}

// Stats contains a summary of resolved configuration for startup logging.
type Stats struct {
	LLMProvider    string
	LLMModel       string
	SessionBackend string
	Workers        int
	RecursionLimit int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.LLM != nil {
		s.LLMProvider = c.LLM.Provider
		s.LLMModel = c.LLM.Model
	}
	if c.Session != nil {
		s.SessionBackend = c.Session.Backend
	}
	if c.Queue != nil {
		s.Workers = c.Queue.WorkerCount
	}
	if c.Engine != nil {
		s.RecursionLimit = c.Engine.RecursionLimit
	}
	return s
}
