package idp

import (
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubHost = "github.com"

// GitHubProvider implements Provider for github.com and GitHub Enterprise Server.
// GitHub uses plain OAuth 2.0; the CMS only needs the access token.
type GitHubProvider struct {
	oauthProvider
}

// NewGitHubProvider creates a new GitHub OAuth provider. An empty hostname
// selects github.com.
func NewGitHubProvider(clientID, clientSecret, redirectURI, hostname string, scopes []string, httpClient *http.Client) *GitHubProvider {
	endpoint := github.Endpoint
	if hostname != "" && hostname != githubHost {
		endpoint = oauth2.Endpoint{
			AuthURL:   "https://" + hostname + "/login/oauth/authorize",
			TokenURL:  "https://" + hostname + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	} else {
		hostname = githubHost
	}

	return &GitHubProvider{
		oauthProvider: oauthProvider{
			kind: "github",
			host: hostname,
			config: oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  redirectURI,
				Scopes:       scopes,
				Endpoint:     endpoint,
			},
			httpClient: httpClient,
		},
	}
}
