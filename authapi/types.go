package authapi

import "github.com/MrEthical07/goSession/store"

// Envelope is the response shape of every authority endpoint.
type Envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Account is the profile returned alongside a login.
type Account struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	Avatar *string `json:"avatar,omitempty"`
}

// LoginBody is the credential payload.
type LoginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is returned by login and password change.
type LoginData struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	Account      *Account `json:"account,omitempty"`
}

// Pair returns the token pair of d.
func (d LoginData) Pair() store.Pair {
	return store.Pair{AccessToken: d.AccessToken, RefreshToken: d.RefreshToken}
}

// RefreshBody carries a refresh token.
type RefreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordBody is the payload of change-password-v2.
type ChangePasswordBody struct {
	OldPassword     string `json:"oldPassword"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// MessageResponse is an envelope without data.
type MessageResponse struct {
	Message string `json:"message"`
}
