package gateway

// Credentials identify an account against the gateway. The vendor UID
// selects the tenant, the token authenticates the call.
type Credentials struct {
	Token     string
	VendorUID string
}

// Message is one templated send. Fields are forwarded verbatim into the
// request body (body-parameter slots, media URLs, location fields).
type Message struct {
	Phone        string
	TemplateName string
	Language     string
	Fields       map[string]string
}

// Result classifies the outcome of one send. A transport fault or a
// non-2xx status is reported as OK=false with Error set; the engine
// records it and moves on.
type Result struct {
	OK        bool
	MessageID string
	Error     string
}

// sendResponse is the gateway's success body.
type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status,omitempty"`
}
