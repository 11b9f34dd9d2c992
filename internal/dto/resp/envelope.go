package resp

// Envelope wraps every JSON body the API returns.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func OK(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// Fail builds an error envelope: message is the short summary, errMsg the explanation.
func Fail(message, errMsg string, details any) Envelope {
	return Envelope{Message: message, Data: ErrorBody{Error: errMsg, Details: details}}
}
