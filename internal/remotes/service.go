package remotes

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// ServiceKind identifies a supported remote service.
type ServiceKind string

const (
	ServiceGoogleDocs   ServiceKind = "gdoc"
	ServiceMicrosoft365 ServiceKind = "m365"
	ServiceGitHub       ServiceKind = "github"
)

// ServiceFromURL classifies a remote URL, "" when unsupported.
func ServiceFromURL(raw string) ServiceKind {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	switch {
	case host == "docs.google.com":
		return ServiceGoogleDocs
	case strings.HasSuffix(host, "sharepoint.com"), host == "onedrive.live.com", host == "1drv.ms":
		return ServiceMicrosoft365
	case host == "github.com":
		return ServiceGitHub
	default:
		return ""
	}
}

// Service is the per-service codec surface the sync core consumes.
type Service interface {
	// Kind returns the service this codec serves.
	Kind() ServiceKind

	// ModifiedAt returns the remote document's modification time as
	// UNIX seconds.
	ModifiedAt(ctx context.Context, url string) (uint64, error)

	// Push uploads the local file to the remote, returning the (possibly
	// new) remote URL.
	Push(ctx context.Context, localPath, url string) (string, error)

	// Pull downloads the remote document to the local path.
	Pull(ctx context.Context, url, localPath string) error
}

var (
	servicesMu sync.RWMutex
	services   = map[ServiceKind]Service{}
)

// RegisterService installs a codec for a service kind.
func RegisterService(s Service) {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	services[s.Kind()] = s
}

// ServiceFor returns the codec for a URL, nil when the URL's service is
// unsupported or no codec is registered.
func ServiceFor(url string) Service {
	kind := ServiceFromURL(url)
	if kind == "" {
		return nil
	}
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return services[kind]
}
