package model

// Verdict is the structured outcome of a key validation attempt. Rejections
// are data, not errors: injector clients branch on the message string, so
// the messages are part of the wire contract and must stay stable.
type Verdict struct {
	Status  string `json:"status"` // "success" or "error"
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Accept builds a success verdict.
func Accept(message string) Verdict {
	return Verdict{Status: "success", Valid: true, Message: message}
}

// Reject builds a rejection verdict.
func Reject(message string) Verdict {
	return Verdict{Status: "error", Valid: false, Message: message}
}
