package handler

// Response envelopes for the presence API.

type OnlineCountResponse struct {
	Count int64 `json:"count"`
}

type UserSocketsResponse struct {
	UserID        int64    `json:"userId"`
	ConnectionIDs []string `json:"connectionIds"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}
