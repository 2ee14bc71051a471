// Package proxy federates package lookups to upstream registries. It is
// consulted only after a confirmed local miss, and only when the caller
// allows proxying.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"package-registry/config"
	"package-registry/index"
)

const simpleContentType = "application/vnd.pypi.simple.v1+json"

// Federator queries configured mirrors in ascending priority order. The
// first mirror answering with a success wins outright; mirrors that error
// or answer non-2xx are skipped silently and never escalate to the caller.
type Federator struct {
	mirrors []config.MirrorConfig
	client  *http.Client
	timeout time.Duration
}

func New(mirrors []config.MirrorConfig, timeout time.Duration) *Federator {
	return &Federator{
		mirrors: mirrors,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Enabled reports whether any upstream is configured.
func (f *Federator) Enabled() bool {
	return len(f.mirrors) > 0
}

// SimpleDetail fetches the simple-API project detail from the first mirror
// that has the project. Exhaustion returns ErrProjectNotFound: the caller's
// original miss stands.
func (f *Federator) SimpleDetail(
	ctx context.Context,
	name string,
) (*index.SimpleDetail, error) {
	for _, mirror := range f.mirrors {
		url := expand(mirror.IndexURL, name)

		detail := &index.SimpleDetail{}
		if !f.fetch(ctx, mirror, url, simpleContentType, detail) {
			continue
		}

		return detail, nil
	}

	return nil, index.ErrProjectNotFound
}

// Detail fetches the JSON-API package document. An empty version requests
// the mirror's latest. The result is marked non-local and is not cached.
func (f *Federator) Detail(
	ctx context.Context,
	name, version string,
) (*index.Doc, error) {
	target := name
	if version != "" {
		target = name + "/" + version
	}

	for _, mirror := range f.mirrors {
		if mirror.PackageURL == "" {
			continue
		}
		url := expand(mirror.PackageURL, target)

		doc := &index.Doc{}
		if !f.fetch(ctx, mirror, url, "", doc) {
			continue
		}
		doc.Local = false

		return doc, nil
	}

	return nil, index.ErrProjectNotFound
}

// fetch performs one bounded upstream call and decodes a 2xx body into out.
// Any failure is absorbed: logged at warn level and reported as a miss.
func (f *Federator) fetch(
	ctx context.Context,
	mirror config.MirrorConfig,
	url, accept string,
	out any,
) bool {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Warn().Err(err).Str("mirror", mirror.Name).Msg("failed to build mirror request")

		return false
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if mirror.Username != "" {
		req.SetBasicAuth(mirror.Username, mirror.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("mirror", mirror.Name).Msg("mirror request failed")

		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("mirror", mirror.Name).
			Msg("mirror returned non-success")

		return false
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Warn().Err(err).Str("mirror", mirror.Name).Msg("failed to decode mirror response")

		return false
	}

	log.Info().Str("mirror", mirror.Name).Str("url", url).Msg("resolved from mirror")

	return true
}

// expand fills the {project_name} placeholder, falling back to path-join
// for templates without one.
func expand(template, name string) string {
	if strings.Contains(template, "{project_name}") {
		return strings.ReplaceAll(template, "{project_name}", name)
	}

	return fmt.Sprintf("%s/%s", strings.TrimSuffix(template, "/"), name)
}
