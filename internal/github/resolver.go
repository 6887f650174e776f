// Package github decides who may claim a request sourced from a GitHub issue.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fundrequest/claim-service/internal/domain"
	"github.com/fundrequest/claim-service/pkg/githubclient"
)

const platformIDSeparator = "|FR|"

// IssueClient is the subset of the GitHub API the resolver depends on.
type IssueClient interface {
	GetIssue(ctx context.Context, owner, repo, number string) (*githubclient.Issue, error)
	ListIssueTimeline(ctx context.Context, owner, repo, number string) ([]githubclient.TimelineEvent, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*githubclient.PullRequest, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (*githubclient.Commit, error)
}

// ClaimResolver maps principals to GitHub logins and decides whether they solved an issue.
type ClaimResolver struct {
	client IssueClient
	logger *slog.Logger
}

func NewClaimResolver(client IssueClient, logger *slog.Logger) *ClaimResolver {
	return &ClaimResolver{client: client, logger: logger}
}

// GetUserPlatformUsername returns the login the principal linked for platform.
func (r *ClaimResolver) GetUserPlatformUsername(ctx context.Context, principal domain.Principal, platform domain.Platform) (string, bool, error) {
	if platform != domain.PlatformGithub {
		return "", false, nil
	}
	username, ok := principal.PlatformUsername(domain.PlatformGithub)
	return username, ok, nil
}

// CanClaim reports whether principal solved the issue behind request. The request must be
// funded, the issue closed, and the resolved solver must be the principal's GitHub login.
func (r *ClaimResolver) CanClaim(ctx context.Context, principal domain.Principal, request domain.RequestDto) (bool, error) {
	if request.Status != domain.RequestStatusFunded && request.Status != domain.RequestStatusClaimable {
		return false, nil
	}
	if request.IssueInformation.Platform != domain.PlatformGithub {
		return false, nil
	}

	username, ok, err := r.GetUserPlatformUsername(ctx, principal, domain.PlatformGithub)
	if err != nil || !ok {
		return false, err
	}

	owner, repo, number, ok := IssueCoordinates(request.IssueInformation)
	if !ok {
		r.logger.Warn("request has no resolvable issue coordinates", "component", "github_resolver", "request_id", request.ID)
		return false, nil
	}

	issue, err := r.client.GetIssue(ctx, owner, repo, number)
	if err != nil {
		if errors.Is(err, githubclient.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !issue.IsClosed() {
		return false, nil
	}

	solver, found, err := r.ResolveSolver(ctx, owner, repo, number)
	if err != nil || !found {
		return false, err
	}
	return strings.EqualFold(solver, username), nil
}

// ResolveSolver returns the GitHub login credited with closing the issue: the author of
// the most recent merged pull request referencing it, otherwise the author of the
// commit that closed it.
func (r *ClaimResolver) ResolveSolver(ctx context.Context, owner, repo, number string) (string, bool, error) {
	events, err := r.client.ListIssueTimeline(ctx, owner, repo, number)
	if err != nil {
		return "", false, err
	}

	var solver string
	for _, event := range events {
		if event.Event != "cross-referenced" || event.Source == nil || event.Source.Issue == nil {
			continue
		}
		ref := event.Source.Issue
		if !ref.IsPullRequest() {
			continue
		}
		prOwner, prRepo := owner, repo
		if ref.Repository != nil && ref.Repository.Owner.Login != "" && ref.Repository.Name != "" {
			prOwner, prRepo = ref.Repository.Owner.Login, ref.Repository.Name
		}
		pr, err := r.client.GetPullRequest(ctx, prOwner, prRepo, ref.Number)
		if err != nil {
			if errors.Is(err, githubclient.ErrNotFound) {
				continue
			}
			return "", false, err
		}
		if pr.Merged && pr.User.Login != "" {
			solver = pr.User.Login
		}
	}
	if solver != "" {
		return solver, true, nil
	}

	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.Event != "closed" || event.CommitID == "" {
			continue
		}
		commit, err := r.client.GetCommit(ctx, owner, repo, event.CommitID)
		if err != nil {
			if errors.Is(err, githubclient.ErrNotFound) {
				// closing commit lives in another repository
				continue
			}
			return "", false, err
		}
		if commit.Author != nil && commit.Author.Login != "" {
			return commit.Author.Login, true, nil
		}
	}
	return "", false, nil
}

// IssueCoordinates returns owner, repository and issue number for a GitHub request,
// falling back to the "owner|FR|repo|FR|number" platform id format.
func IssueCoordinates(info domain.IssueInformation) (owner, repo, number string, ok bool) {
	if info.Owner != "" && info.Repo != "" && info.Number != "" {
		return info.Owner, info.Repo, info.Number, true
	}
	parts := strings.Split(info.PlatformID, platformIDSeparator)
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return "", "", "", false
		}
	}
	return parts[0], parts[1], parts[2], true
}

// PlatformID builds the platform id used to look up GitHub requests.
func PlatformID(owner, repo, number string) string {
	return fmt.Sprintf("%s%s%s%s%s", owner, platformIDSeparator, repo, platformIDSeparator, number)
}
