package models

// RegisterRequest identifies this host to the ingest API. It is built once
// at startup and resent unchanged until the server accepts it.
type RegisterRequest struct {
	Name         string  `json:"name"`
	Hostname     string  `json:"hostname"`
	IPAddress    *string `json:"ip_address"`
	OSType       string  `json:"os_type"`
	OSVersion    string  `json:"os_version"`
	AgentVersion string  `json:"agent_version"`
}

// RegisterResponse is the envelope returned by the register endpoint.
type RegisterResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *RegisterData `json:"data,omitempty"`
}

// RegisterData carries the server-side identity assigned to this host.
type RegisterData struct {
	ServerID string `json:"server_id"`
}

// HealthCheckPayload reports the outcome of one endpoint probe.
type HealthCheckPayload struct {
	EndpointID   string  `json:"endpoint_id"`
	StatusCode   *int    `json:"status_code"`
	ResponseTime float64 `json:"response_time"`
	IsUp         bool    `json:"is_up"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CheckedFrom  string  `json:"checked_from"`
}
