package sheets

import (
	"net/url"
	"strings"
)

// route sends a request either straight to the API or through a proxy.
type route struct {
	name string
	wrap func(target string) string
}

func directRoute() route {
	return route{name: "direct", wrap: func(target string) string { return target }}
}

func proxyRoute(template string) route {
	name := template
	if u, err := url.Parse(strings.ReplaceAll(template, "{url}", "")); err == nil && u.Host != "" {
		name = u.Host
	}
	if strings.Contains(template, "{url}") {
		return route{name: name, wrap: func(target string) string {
			return strings.ReplaceAll(template, "{url}", url.QueryEscape(target))
		}}
	}
	return route{name: name, wrap: func(target string) string { return template + target }}
}
