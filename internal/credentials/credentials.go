// Package credentials describes the provider-specific payloads exchanged for a
// refresh token at login.
package credentials

import "fmt"

// Provider names understood by the sync service auth endpoint.
const (
	ProviderUsernamePassword = "password"
	ProviderFacebook         = "facebook"
	ProviderGoogle           = "google"
	ProviderAzureAD          = "azuread"
	ProviderJWT              = "jwt"
	ProviderNickname         = "nickname"
	ProviderAnonymous        = "anonymous"

	// ProviderRealm is used when exchanging a refresh token for an access token.
	ProviderRealm = "realm"
)

// Credentials is an immutable login payload. Build it with one of the
// constructors below; the zero value is not usable.
type Credentials struct {
	provider string
	data     string
	userInfo map[string]any
}

// RequestBody is the canonical JSON body posted to {server}/auth.
type RequestBody struct {
	Provider string         `json:"provider"`
	Data     string         `json:"data"`
	UserInfo map[string]any `json:"user_info"`
	// AppID is reserved by the protocol and always sent empty.
	AppID string `json:"app_id"`
}

func UsernamePassword(username, password string, createUser bool) Credentials {
	return Custom(ProviderUsernamePassword, username, map[string]any{
		"password": password,
		"register": createUser,
	})
}

func Facebook(accessToken string) Credentials {
	return Custom(ProviderFacebook, accessToken, nil)
}

func Google(accessToken string) Credentials {
	return Custom(ProviderGoogle, accessToken, nil)
}

func AzureAD(accessToken string) Credentials {
	return Custom(ProviderAzureAD, accessToken, nil)
}

func JWT(token string) Credentials {
	return Custom(ProviderJWT, token, nil)
}

func Nickname(value string, isAdmin bool) Credentials {
	return Custom(ProviderNickname, value, map[string]any{"is_admin": isAdmin})
}

func Anonymous() Credentials {
	return Custom(ProviderAnonymous, "", nil)
}

// Custom builds credentials for a provider not covered by the helpers. The
// userInfo map is copied.
func Custom(provider, data string, userInfo map[string]any) Credentials {
	return Credentials{provider: provider, data: data, userInfo: copyInfo(userInfo)}
}

func (c Credentials) Provider() string { return c.provider }
func (c Credentials) Data() string     { return c.data }

// UserInfo returns a copy of the provider-specific extras.
func (c Credentials) UserInfo() map[string]any { return copyInfo(c.userInfo) }

// Body serializes the credentials into the auth request body.
func (c Credentials) Body() RequestBody {
	return RequestBody{
		Provider: c.provider,
		Data:     c.data,
		UserInfo: copyInfo(c.userInfo),
	}
}

func copyInfo(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ForProvider builds credentials from configuration values. data is the
// username, nickname or provider token; password and createUser only apply
// to the password provider.
func ForProvider(provider, data, password string, createUser bool) (Credentials, error) {
	switch provider {
	case ProviderUsernamePassword:
		if data == "" {
			return Credentials{}, fmt.Errorf("provider %s requires a username", provider)
		}
		return UsernamePassword(data, password, createUser), nil
	case ProviderFacebook, ProviderGoogle, ProviderAzureAD, ProviderJWT:
		if data == "" {
			return Credentials{}, fmt.Errorf("provider %s requires a token", provider)
		}
		return Custom(provider, data, nil), nil
	case ProviderNickname:
		return Nickname(data, false), nil
	case ProviderAnonymous:
		return Anonymous(), nil
	case "", ProviderRealm:
		return Credentials{}, fmt.Errorf("invalid login provider %q", provider)
	default:
		return Custom(provider, data, nil), nil
	}
}
