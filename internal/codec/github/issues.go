// Package github pulls documents attached to GitHub issues.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// docxLinkRe matches DOCX markdown links in issue bodies and comments:
//
//   - https://github.com/user-attachments/files/... (documents)
//   - https://github.com/user-attachments/assets/... (assets)
//   - https://github.com/owner/repo/files/...        (older format)
var docxLinkRe = regexp.MustCompile(
	`(?i)\[([^\]]+\.docx)\]\((https://(?:github\.com/user-attachments/(?:assets|files)/[a-f0-9-]+(?:/[^)\s]+)?|github\.com/[^/]+/[^/]+/files/[^)]+))\)`,
)

// IssueRef identifies one GitHub issue.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// ParseIssueURL parses https://github.com/<owner>/<repo>/issues/<n>.
// A #issuecomment-* fragment is ignored: all comments are fetched
// regardless.
func ParseIssueURL(raw string) (IssueRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return IssueRef{}, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return IssueRef{}, fmt.Errorf("not a github.com URL: %s", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[2] != "issues" {
		return IssueRef{}, fmt.Errorf("not an issue URL (expected /<owner>/<repo>/issues/<n>): %s", raw)
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue number in %s", raw)
	}
	return IssueRef{Owner: parts[0], Repo: parts[1], Number: number}, nil
}

// Client fetches issue content and attachments.
type Client struct {
	HTTP  *http.Client
	Token string

	// BaseURL overrides the GitHub API endpoint, for tests.
	BaseURL string

	// BrowserPrompt is invoked when an attachment download returns 404
	// in a private repo: it should open the URL in a browser and return
	// the path of the manually downloaded file, or "" to skip.
	BrowserPrompt func(url string) string
}

func NewClient(token string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Token:   strings.TrimSpace(token),
		BaseURL: "https://api.github.com",
	}
}

func (c *Client) request(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.Token != "" {
		// "token" scheme, not "Bearer": user-attachments downloads
		// reject the latter.
		req.Header.Set("Authorization", "token "+c.Token)
	}
	return req, nil
}

type issuePayload struct {
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at"`
}

type commentPayload struct {
	Body string `json:"body"`
}

// commentsPerPage is the GitHub API page size used when listing issue
// comments.
const commentsPerPage = 100

// FetchIssueContent returns the issue body followed by every comment
// body, fetching comments page by page.
func (c *Client) FetchIssueContent(ctx context.Context, ref IssueRef) ([]string, error) {
	issueURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.BaseURL, ref.Owner, ref.Repo, ref.Number)
	var issue issuePayload
	if err := c.getJSON(ctx, issueURL, &issue); err != nil {
		return nil, err
	}
	contents := []string{issue.Body}

	for page := 1; ; page++ {
		commentsURL := fmt.Sprintf("%s/comments?per_page=%d&page=%d", issueURL, commentsPerPage, page)
		var comments []commentPayload
		if err := c.getJSON(ctx, commentsURL, &comments); err != nil {
			return nil, err
		}
		for _, comment := range comments {
			contents = append(contents, comment.Body)
		}
		if len(comments) < commentsPerPage {
			break
		}
	}
	return contents, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := c.request(ctx, url)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GitHub API %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ModifiedAt returns the issue's updated_at as UNIX seconds.
func (c *Client) ModifiedAt(ctx context.Context, issueURL string) (uint64, error) {
	ref, err := ParseIssueURL(issueURL)
	if err != nil {
		return 0, err
	}
	var issue issuePayload
	apiURL := fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.BaseURL, ref.Owner, ref.Repo, ref.Number)
	if err := c.getJSON(ctx, apiURL, &issue); err != nil {
		return 0, err
	}
	t, err := time.Parse(time.RFC3339, issue.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("parse updated_at %q: %w", issue.UpdatedAt, err)
	}
	return uint64(t.Unix()), nil
}

// Attachment is one DOCX link found in issue content.
type Attachment struct {
	Name string
	URL  string
}

// FindDocxAttachments extracts DOCX attachment links from markdown.
func FindDocxAttachments(body string) []Attachment {
	var out []Attachment
	for _, m := range docxLinkRe.FindAllStringSubmatch(body, -1) {
		out = append(out, Attachment{Name: m[1], URL: m[2]})
	}
	return out
}

// downloaded is an attachment fetched to disk plus the document path
// embedded in its DOCX properties (empty when absent).
type downloaded struct {
	attachment   Attachment
	tempPath     string
	embeddedPath string
}

// Pull fetches the issue, downloads its DOCX attachments, and writes the
// one matching targetPath to destPath. Attachments carrying the same
// embedded document path de-duplicate last-writer-wins in insertion
// order. Matching is by exact path, then suffix comparison in either
// direction.
func (c *Client) Pull(ctx context.Context, issueURL, destPath string, targetPath string) error {
	ref, err := ParseIssueURL(issueURL)
	if err != nil {
		return err
	}
	contents, err := c.FetchIssueContent(ctx, ref)
	if err != nil {
		return err
	}

	var attachments []Attachment
	for _, body := range contents {
		attachments = append(attachments, FindDocxAttachments(body)...)
	}
	if len(attachments) == 0 {
		return fmt.Errorf("no DOCX attachments found in %s", issueURL)
	}

	var downloads []downloaded
	for _, attachment := range attachments {
		tempPath, err := c.download(ctx, attachment.URL)
		if err != nil {
			slog.Warn("failed to download attachment", "url", attachment.URL, "error", err)
			continue
		}
		if tempPath == "" {
			continue
		}
		embedded, err := docxEmbeddedPath(tempPath)
		if err != nil {
			slog.Debug("no embedded path in attachment", "url", attachment.URL, "error", err)
		}
		downloads = append(downloads, downloaded{
			attachment:   attachment,
			tempPath:     tempPath,
			embeddedPath: embedded,
		})
	}
	defer func() {
		for _, d := range downloads {
			_ = os.Remove(d.tempPath)
		}
	}()
	if len(downloads) == 0 {
		return fmt.Errorf("no DOCX attachments could be downloaded from %s", issueURL)
	}

	// De-duplicate by embedded path, last writer wins in insertion
	// order. Attachments without an embedded path key by file name.
	byPath := map[string]downloaded{}
	var order []string
	for _, d := range downloads {
		key := d.embeddedPath
		if key == "" {
			key = d.attachment.Name
		}
		if _, seen := byPath[key]; !seen {
			order = append(order, key)
		}
		byPath[key] = d
	}

	target := targetPath
	if target == "" {
		target = destPath
	}
	match, ok := matchTarget(byPath, order, target)
	if !ok {
		return fmt.Errorf("no attachment in %s matches %s", issueURL, target)
	}

	b, err := os.ReadFile(match.tempPath)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, b, 0o644)
}

// matchTarget finds the downloaded attachment matching the requested
// path: exact, then either path a suffix of the other.
func matchTarget(byPath map[string]downloaded, order []string, target string) (downloaded, bool) {
	target = strings.TrimPrefix(target, "./")
	for _, key := range order {
		if key == target {
			return byPath[key], true
		}
	}
	for _, key := range order {
		if strings.HasSuffix(target, key) || strings.HasSuffix(key, target) {
			return byPath[key], true
		}
	}
	// Single attachment: take it.
	if len(order) == 1 {
		return byPath[order[0]], true
	}
	return downloaded{}, false
}

// download fetches an attachment to a temp file. A 404 on a private
// repo's user-attachments URL falls back to a browser-assisted download
// when a prompt hook is installed.
func (c *Client) download(ctx context.Context, attachmentURL string) (string, error) {
	req, err := c.request(ctx, attachmentURL)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound && c.BrowserPrompt != nil {
		// Private-repo attachments need browser session cookies.
		if path := c.BrowserPrompt(attachmentURL); path != "" {
			return path, nil
		}
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: %s", attachmentURL, resp.Status)
	}

	f, err := os.CreateTemp("", "stencila-attachment-*.docx")
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
