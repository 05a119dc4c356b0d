package auth

import (
	"testing"

	"github.com/lumenfeed/ingest/internal/models"
)

func pub(domain string, whitelist []string) *models.Publisher {
	return &models.Publisher{
		Domain: domain,
		Config: models.PublisherConfig{WhitelistedBlogURLs: whitelist},
	}
}

func TestCheckDomain(t *testing.T) {
	p := New()
	publisher := pub("example.com", nil)

	if err := p.CheckDomain("https://example.com/a", publisher); err != nil {
		t.Errorf("expected exact domain match to pass, got %v", err)
	}
	if err := p.CheckDomain("https://blog.example.com/a", publisher); err != nil {
		t.Errorf("expected subdomain match to pass, got %v", err)
	}
	if err := p.CheckDomain("https://notexample.com/a", publisher); err == nil {
		t.Error("expected domain mismatch to fail")
	}
}

func TestCheckWhitelist_Empty(t *testing.T) {
	p := New()
	publisher := pub("example.com", nil)
	if err := p.CheckWhitelist("https://example.com/anything", publisher); err != nil {
		t.Errorf("empty whitelist should accept any url, got %v", err)
	}
}

func TestCheckWhitelist_GlobPatterns(t *testing.T) {
	p := New()
	publisher := pub("example.com", []string{"https://example.com/blog/*"})

	if err := p.CheckWhitelist("https://example.com/blog/my-post", publisher); err != nil {
		t.Errorf("expected match for wildcard path, got %v", err)
	}
	if err := p.CheckWhitelist("https://example.com/blog/nested/post", publisher); err != nil {
		t.Errorf("expected * to match across slashes, got %v", err)
	}
	if err := p.CheckWhitelist("https://example.com/news/post", publisher); err == nil {
		t.Error("expected no match outside whitelisted prefix")
	}
}

func TestCheckWhitelist_CaseSensitivity(t *testing.T) {
	p := New()
	publisher := pub("example.com", []string{"https://EXAMPLE.com/Blog/*"})

	if err := p.CheckWhitelist("https://example.com/Blog/Post", publisher); err != nil {
		t.Errorf("host should match case-insensitively, got %v", err)
	}
	if err := p.CheckWhitelist("https://example.com/blog/Post", publisher); err == nil {
		t.Error("path should be matched case-sensitively")
	}
}
