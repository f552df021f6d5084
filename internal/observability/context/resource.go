package context

import "strings"

var routeResources = []struct {
	prefix string
	key    string
}{
	{"/api/subscriptions/:id", "subscription_id"},
	{"/api/invoices/:id", "invoice_id"},
	{"/api/plans/:id", "plan_id"},
}

// RouteResource maps a gin route template to the log/span key naming its
// ":id" parameter and the operation it performs on that resource, e.g.
// "/api/subscriptions/:id/renew" -> ("subscription_id", "renew").
// Collection routes return an empty key.
func RouteResource(method, route string) (key, operation string) {
	for _, r := range routeResources {
		if route != r.prefix && !strings.HasPrefix(route, r.prefix+"/") {
			continue
		}
		key = r.key
		rest := strings.TrimPrefix(strings.TrimPrefix(route, r.prefix), "/")
		switch {
		case rest != "" && strings.EqualFold(method, "POST"):
			return key, rest
		case rest != "":
			return key, "list_" + rest
		default:
			return key, "get"
		}
	}
	if strings.EqualFold(method, "POST") && route == "/api/subscriptions" {
		return "", "create"
	}
	return "", ""
}
