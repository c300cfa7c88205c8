package domain

// Agent describes an externally hosted conversational persona. Agent
// records come from the gateway on demand and are never persisted.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model,omitempty"`
}
