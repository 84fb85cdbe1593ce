package main

import (
	"reflect"
	"testing"

	"github.com/opscart/site-optimizer/pkg/models"
)

func TestSplitPatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"shop", []string{"shop"}},
		{"shop, blog ,,news", []string{"shop", "blog", "news"}},
		{" , ", nil},
	}

	for _, tt := range tests {
		if got := splitPatterns(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitPatterns(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLatestDeploymentFor(t *testing.T) {
	recent := []*models.Deployment{
		{ID: "newest", Actions: []*models.DeploymentAction{{SiteDomain: "b.com"}}},
		{ID: "middle", Actions: []*models.DeploymentAction{{SiteDomain: "a.com"}, {SiteDomain: "b.com"}}},
		{ID: "oldest", Actions: []*models.DeploymentAction{{SiteDomain: "a.com"}}},
	}

	tests := []struct {
		site string
		want string
	}{
		{"a.com", "middle"},
		{"b.com", "newest"},
		{"c.com", ""},
	}

	for _, tt := range tests {
		if got := latestDeploymentFor(recent, tt.site); got != tt.want {
			t.Errorf("latestDeploymentFor(%q) = %q, want %q", tt.site, got, tt.want)
		}
	}
}
