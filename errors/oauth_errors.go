package errors

import "fmt"

// OAuth2Error represents a standardized OAuth 2.0 error response body.
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes plus the authorize-endpoint specific codes
// this server emits.
const (
	InvalidRequest             = "invalid_request"
	UnauthorizedClient         = "unauthorized_client"
	AccessDenied               = "access_denied"
	UnsupportedGrantType       = "unsupported_grant_type"
	InvalidScope               = "invalid_scope"
	InvalidClient              = "invalid_client"
	InvalidGrant               = "invalid_grant"
	InvalidToken               = "invalid_token"
	InvalidRedirectURI         = "invalid_redirect_uri"
	PKCERequired               = "pkce_required"
	UnsupportedChallengeMethod = "unsupported_challenge_method"
	ServerError                = "server_error"
	TemporarilyUnavailable     = "temporarily_unavailable"
)

// Common error constructors
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRequest,
		Description: description,
	}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidClient,
		Description: description,
	}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidGrant,
		Description: description,
	}
}

func NewInvalidToken(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidToken,
		Description: description,
	}
}

func NewInvalidRedirectURI() *OAuth2Error {
	return &OAuth2Error{
		Code:        InvalidRedirectURI,
		Description: "redirect_uri is not registered for this client",
	}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        ServerError,
		Description: description,
	}
}

func NewTemporarilyUnavailable(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        TemporarilyUnavailable,
		Description: description,
	}
}

// PKCE specific errors
func NewPKCERequired() *OAuth2Error {
	return &OAuth2Error{
		Code:        PKCERequired,
		Description: "code_challenge and code_challenge_method are mandatory",
	}
}

func NewUnsupportedChallengeMethod() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedChallengeMethod,
		Description: "only the S256 code_challenge_method is supported",
	}
}

func NewUnsupportedGrantType() *OAuth2Error {
	return &OAuth2Error{
		Code:        UnsupportedGrantType,
		Description: "grant_type must be authorization_code or refresh_token",
	}
}
