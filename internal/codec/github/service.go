package github

import (
	"context"
	"fmt"
	"os"

	"github.com/stencila/stencila/internal/remotes"
)

// IssueService adapts Client to the remote-sync service surface.
// GitHub issues are pull-only: documents are attached by collaborators
// on the issue, not pushed from local files.
type IssueService struct {
	Client *Client
}

// Register installs the service using a token from GITHUB_TOKEN or
// GH_TOKEN.
func Register() {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}
	remotes.RegisterService(&IssueService{Client: NewClient(token)})
}

func (s *IssueService) Kind() remotes.ServiceKind { return remotes.ServiceGitHub }

func (s *IssueService) ModifiedAt(ctx context.Context, url string) (uint64, error) {
	return s.Client.ModifiedAt(ctx, url)
}

func (s *IssueService) Push(ctx context.Context, localPath, url string) (string, error) {
	return "", fmt.Errorf("pushing to GitHub issues is not supported; attach documents on the issue instead")
}

func (s *IssueService) Pull(ctx context.Context, url, localPath string) error {
	return s.Client.Pull(ctx, url, localPath, localPath)
}
