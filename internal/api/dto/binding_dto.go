package dto

import "time"

// IssueBindingCodeRequest payload.
type IssueBindingCodeRequest struct {
	OwnerIdentity string `json:"owner_identity"`
	ExpireSeconds int    `json:"expire_seconds"`
}

// BindingCodeResponse describes a freshly issued binding code.
type BindingCodeResponse struct {
	Code          string    `json:"code"`
	SceneStr      string    `json:"scene_str"`
	QRCodeURL     string    `json:"qrcodeUrl"`
	ExpireSeconds int       `json:"expire_seconds"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// BindingStatusResponse reports whether a staff record is linked.
type BindingStatusResponse struct {
	OwnerIdentity  string    `json:"owner_identity"`
	Bound          bool      `json:"bound"`
	OfficialOpenID *string   `json:"official_openid,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
