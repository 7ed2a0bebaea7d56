package dto

// CreateQRCodeRequest payload.
type CreateQRCodeRequest struct {
	SceneStr      string `json:"scene_str"`
	ExpireSeconds int    `json:"expire_seconds"`
}

// CreateQRCodeResponse keeps the flat shape frontends already consume.
type CreateQRCodeResponse struct {
	OK            bool   `json:"ok"`
	QRCodeURL     string `json:"qrcodeUrl"`
	Ticket        string `json:"ticket"`
	ExpireSeconds int    `json:"expire_seconds"`
}

// AccessTokenData is returned by the diagnostic token endpoint.
type AccessTokenData struct {
	AccessToken string `json:"access_token"`
}
