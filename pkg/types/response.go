package types

// SuccessEnvelope wraps every successful JSON body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the tagged failure body: callers branch on Error.Code.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
