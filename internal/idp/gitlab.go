package idp

import (
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/gitlab"
)

const gitlabHost = "gitlab.com"

// GitLabProvider implements Provider for gitlab.com and self-managed GitLab.
type GitLabProvider struct {
	oauthProvider
}

// NewGitLabProvider creates a new GitLab OAuth provider
func NewGitLabProvider(clientID, clientSecret, redirectURI, hostname string, scopes []string, httpClient *http.Client) *GitLabProvider {
	endpoint := gitlab.Endpoint
	if hostname != "" && hostname != gitlabHost {
		endpoint = oauth2.Endpoint{
			AuthURL:  "https://" + hostname + "/oauth/authorize",
			TokenURL: "https://" + hostname + "/oauth/token",
		}
	} else {
		hostname = gitlabHost
	}

	return &GitLabProvider{
		oauthProvider: oauthProvider{
			kind: "gitlab",
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
