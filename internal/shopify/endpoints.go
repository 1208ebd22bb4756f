package shopify

import (
	"fmt"
	"net/url"
	"strings"
)

const myshopifySuffix = ".myshopify.com"

// Admin token prefixes issued by Shopify.
var adminTokenPrefixes = []string{"shpat_", "shpca_", "shppa_"}

// minAdminTokenLength is the shortest plausible admin token.
const minAdminTokenLength = 32

// EndpointConfig is the raw Shopify connection configuration.
type EndpointConfig struct {
	// StoreDomain is the public storefront host (custom domain or myshopify host)
	StoreDomain string

	// AdminDomain is the configured admin host; optional
	AdminDomain string

	StorefrontToken      string
	AdminToken           string
	StorefrontAPIVersion string
	AdminAPIVersion      string
}

// Endpoints are the resolved GraphQL endpoints.
type Endpoints struct {
	// Store is the normalized public store host
	Store string

	// Storefront is the Storefront GraphQL URL
	Storefront string

	// Admin lists candidate Admin GraphQL URLs in order. A 404 from the
	// first moves on to the second; any other failure ends the walk.
	Admin []string

	// AdminEnabled is false when no admin host can be derived or the
	// admin token is missing or implausible.
	AdminEnabled bool
}

// ResolveEndpoints validates cfg and derives the GraphQL endpoints.
func ResolveEndpoints(cfg EndpointConfig) (Endpoints, error) {
	store := normalizeHost(cfg.StoreDomain)
	if store == "" {
		return Endpoints{}, fmt.Errorf("store domain is required")
	}
	if cfg.StorefrontToken == "" {
		return Endpoints{}, fmt.Errorf("storefront access token is required")
	}
	if cfg.StorefrontAPIVersion == "" {
		return Endpoints{}, fmt.Errorf("storefront API version is required")
	}

	eps := Endpoints{
		Store:      store,
		Storefront: fmt.Sprintf("https://%s/api/%s/graphql.json", store, cfg.StorefrontAPIVersion),
	}

	hosts := AdminHosts(cfg.AdminDomain, cfg.StoreDomain)
	if len(hosts) == 0 || !PlausibleAdminToken(cfg.AdminToken) {
		return eps, nil
	}
	if cfg.AdminAPIVersion == "" {
		return Endpoints{}, fmt.Errorf("admin API version is required when an admin token is set")
	}

	for _, h := range hosts {
		eps.Admin = append(eps.Admin, fmt.Sprintf("https://%s/admin/api/%s/graphql.json", h, cfg.AdminAPIVersion))
	}
	eps.AdminEnabled = true
	return eps, nil
}

// AdminHosts returns at most two candidate admin hosts. The primary is the
// configured admin domain if it is a myshopify host, else the store domain
// if that is one. The host derived from the public host's first label is
// the secondary, or the only candidate when neither domain is a myshopify
// host.
func AdminHosts(adminDomain, storeDomain string) []string {
	admin := normalizeHost(adminDomain)
	store := normalizeHost(storeDomain)

	var primary string
	switch {
	case isMyshopify(admin):
		primary = admin
	case isMyshopify(store):
		primary = store
	}

	var derived string
	if public := strings.TrimPrefix(store, "www."); public != "" {
		if label, _, _ := strings.Cut(public, "."); label != "" {
			derived = label + myshopifySuffix
		}
	}

	switch {
	case primary == "" && derived == "":
		return nil
	case primary == "":
		return []string{derived}
	case derived == "" || derived == primary:
		return []string{primary}
	}
	return []string{primary, derived}
}

// PlausibleAdminToken reports whether token looks like a Shopify admin token.
func PlausibleAdminToken(token string) bool {
	if len(token) < minAdminTokenLength {
		return false
	}
	for _, p := range adminTokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

func isMyshopify(host string) bool {
	return strings.HasSuffix(host, myshopifySuffix) && len(host) > len(myshopifySuffix)
}

// normalizeHost accepts a bare host or a URL and returns the lowercase host.
func normalizeHost(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			return u.Hostname()
		}
	}
	host, _, _ := strings.Cut(raw, "/")
	return host
}
