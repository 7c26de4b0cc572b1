// AngelaMos | 2026
// exchanger.go

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

// Exchanger turns a provider authorization code into a verified identity.
// It never stores provider tokens: the access token lives exactly long
// enough to fetch the userinfo document.
type Exchanger struct {
	oauth       *oauth2.Config
	userInfoURL string
}

var _ onboarding.OAuthExchanger = (*Exchanger)(nil)

func NewExchanger(cfg config.OAuthConfig) *Exchanger {
	return &Exchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: []string{"openid", "email"},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (e *Exchanger) Exchange(
	ctx context.Context,
	code string,
) (*onboarding.OAuthIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	token, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %w", onboarding.ErrOAuth, err)
	}

	info, err := e.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	if info.Email == "" || !info.EmailVerified {
		return nil, fmt.Errorf(
			"%w: provider returned no verified email",
			onboarding.ErrOAuth,
		)
	}

	return &onboarding.OAuthIdentity{
		Email:      info.Email,
		ExternalID: info.Sub,
	}, nil
}

func (e *Exchanger) fetchUserInfo(
	ctx context.Context,
	token *oauth2.Token,
) (*userInfo, error) {
	resp, err := e.oauth.Client(ctx, token).Get(e.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch userinfo: %w", onboarding.ErrOAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"%w: userinfo returned %d",
			onboarding.ErrOAuth,
			resp.StatusCode,
		)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %w", onboarding.ErrOAuth, err)
	}

	return &info, nil
}
