package domain

import "time"

// ServiceToken describes a bearer token issued to a backend caller of the proxy API.
type ServiceToken struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}
