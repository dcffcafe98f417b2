package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/llonebot/llbot-cli/internal/config"
	"github.com/llonebot/llbot-cli/internal/domain"
)

// Dist is the download block of npm version metadata.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// Checksum returns the strongest digest the registry published.
func (d Dist) Checksum() string {
	if d.Integrity != "" {
		return d.Integrity
	}
	return d.Shasum
}

// PackageInfo is the subset of npm version metadata the updater reads.
type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    Dist   `json:"dist"`

	// Registry is the endpoint that answered.
	Registry string `json:"-"`
}

// Resolver looks packages up on a primary npm registry and its mirrors.
type Resolver struct {
	primary string
	mirrors []string

	http   *http.Client
	logger *slog.Logger
}

// NewResolver creates a resolver for the configured registries.
func NewResolver(cfg config.RegistryConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = logger
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Resolver{
		primary: strings.TrimRight(cfg.Primary, "/"),
		mirrors: trimAll(cfg.Mirrors),
		http:    retryClient.StandardClient(),
		logger:  logger,
	}
}

func (r *Resolver) Primary() string {
	return r.primary
}

// ResolveLatest asks the primary registry for the latest version and races
// the mirrors when it fails.
func (r *Resolver) ResolveLatest(ctx context.Context, pkg string) (PackageInfo, error) {
	info, err := r.VersionMetadata(ctx, r.primary, pkg, "latest")
	if err == nil {
		return info, nil
	}
	r.logger.Debug("primary registry failed, racing mirrors", "package", pkg, "err", err)

	info, _, mirrorErr := firstSuccess(ctx, r.mirrors, func(ctx context.Context, endpoint string) (PackageInfo, error) {
		return r.VersionMetadata(ctx, endpoint, pkg, "latest")
	})
	if mirrorErr != nil {
		return PackageInfo{}, domain.ErrResolution{Package: pkg, Err: fmt.Errorf("primary: %w; mirrors: %w", err, mirrorErr)}
	}
	return info, nil
}

// BestMirrorForVersion returns the first mirror that confirms it hosts
// version, with that mirror's dist block. Without a confirming mirror it
// returns fallback, or the primary when fallback is empty, and an empty Dist.
func (r *Resolver) BestMirrorForVersion(ctx context.Context, pkg, version, fallback string) (string, Dist) {
	info, endpoint, err := firstSuccess(ctx, r.mirrors, func(ctx context.Context, endpoint string) (PackageInfo, error) {
		return r.VersionMetadata(ctx, endpoint, pkg, version)
	})
	if err != nil {
		r.logger.Debug("no mirror confirmed version", "package", pkg, "version", version, "err", err)
		if fallback != "" {
			return strings.TrimRight(fallback, "/"), Dist{}
		}
		return r.primary, Dist{}
	}
	return endpoint, info.Dist
}

// VersionMetadata fetches /{pkg}/{version} from endpoint. A non-200 answer
// means the version is not hosted there.
func (r *Resolver) VersionMetadata(ctx context.Context, endpoint, pkg, version string) (PackageInfo, error) {
	url := fmt.Sprintf("%s/%s/%s", endpoint, EncodeName(pkg), version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PackageInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return PackageInfo{}, fmt.Errorf("http GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return PackageInfo{}, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}

	var info PackageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return PackageInfo{}, fmt.Errorf("decode %s: %w", url, err)
	}
	if info.Version == "" {
		return PackageInfo{}, fmt.Errorf("%s: metadata has no version", url)
	}
	info.Registry = endpoint
	return info, nil
}

// EncodeName escapes the scope separator of a package name for metadata paths.
func EncodeName(pkg string) string {
	return strings.ReplaceAll(pkg, "/", "%2F")
}

// TarballURL is the conventional npm tarball location of pkg@version.
func TarballURL(endpoint, pkg, version string) string {
	short := pkg
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		short = pkg[i+1:]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", strings.TrimRight(endpoint, "/"), pkg, short, version)
}

func trimAll(endpoints []string) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimRight(strings.TrimSpace(e), "/"); e != "" {
			out = append(out, e)
		}
	}
	return out
}
