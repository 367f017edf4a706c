package scraper

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Site maps a domain to the display name of the platform it belongs to
type Site struct {
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

// Rules lists the outbound link targets the crawler records
type Rules struct {
	SocialPlatforms []Site `yaml:"social_platforms"`
	Directories     []Site `yaml:"directories"`
}

// DefaultRules returns the built-in social platforms and business directories
func DefaultRules() Rules {
	return Rules{
		SocialPlatforms: []Site{
			{"facebook.com", "Facebook"},
			{"twitter.com", "Twitter"},
			{"x.com", "Twitter (X)"},
			{"instagram.com", "Instagram"},
			{"linkedin.com", "LinkedIn"},
			{"tiktok.com", "TikTok"},
			{"youtube.com", "YouTube"},
			{"pinterest.com", "Pinterest"},
			{"threads.net", "Threads"},
			{"snapchat.com", "Snapchat"},
		},
		Directories: []Site{
			{"yelp.com", "Yelp"},
			{"yellowpages.com", "Yellow Pages"},
			{"bbb.org", "Better Business Bureau"},
			{"foursquare.com", "Foursquare"},
			{"manta.com", "Manta"},
			{"chamberofcommerce.com", "Chamber of Commerce"},
			{"citysearch.com", "Citysearch"},
			{"hotfrog.com", "Hotfrog"},
			{"kompass.com", "Kompass"},
			{"thomasnet.com", "ThomasNet"},
			{"trustpilot.com", "Trustpilot"},
			{"angieslist.com", "Angie's List"},
			{"sitejabber.com", "SiteJabber"},
			{"crunchbase.com", "Crunchbase"},
			{"glassdoor.com", "Glassdoor"},
			{"cylex.com", "Cylex"},
			{"tupalo.com", "Tupalo"},
			{"showmelocal.com", "ShowMeLocal"},
			{"businesslistings.net.au", "Business Listings AU"},
			{"businessfinder.com", "Business Finder"},
			{"mapsconnect.apple.com", "Apple Maps Connect"},
			{"superpages.com", "SuperPages"},
		},
	}
}

// LoadRules reads a YAML rules file and merges it over the defaults. Entries
// whose domain already exists replace the default name.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read crawl rules: %w", err)
	}

	var extra Rules
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return rules, fmt.Errorf("failed to parse crawl rules: %w", err)
	}

	rules.SocialPlatforms = mergeSites(rules.SocialPlatforms, extra.SocialPlatforms)
	rules.Directories = mergeSites(rules.Directories, extra.Directories)
	return rules, nil
}

func mergeSites(base, extra []Site) []Site {
	out := append([]Site(nil), base...)
	for _, e := range extra {
		e.Domain = strings.ToLower(strings.TrimSpace(e.Domain))
		if e.Domain == "" || e.Name == "" {
			continue
		}
		replaced := false
		for i := range out {
			if out[i].Domain == e.Domain {
				out[i].Name = e.Name
				replaced = true
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}

// match returns the site whose domain is the host of href or a parent of it
func match(sites []Site, href string) (Site, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Hostname() == "" {
		return Site{}, false
	}
	host := strings.ToLower(u.Hostname())

	for _, s := range sites {
		if host == s.Domain || strings.HasSuffix(host, "."+s.Domain) {
			return s, true
		}
	}
	return Site{}, false
}
