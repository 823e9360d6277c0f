package transport

type LoginRequest struct {
	UserID string `json:"user_id"`
	TTL    int    `json:"ttl_seconds"`
}

type RefreshRequest struct {
	TTL int `json:"ttl_seconds"`
}
