package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an API route.
type ActionResource struct {
	Action   string
	Resource string
}

// singletons are resources addressed without an id; POST updates them and GET reads them.
var singletons = map[string]bool{"profile": true}

// ParseRoute returns action and resource for a method and route template under /api/v1
// (e.g. POST /api/v1/users/{id} -> update user). Collections are singularized.
// Follows the API convention: PUT on a collection creates, POST on an item updates.
func ParseRoute(method, template string) ActionResource {
	rest := strings.Trim(strings.TrimPrefix(template, "/api/v1"), "/")
	if rest == "" {
		return ActionResource{Action: actionFor(method, false, true), Resource: "api"}
	}
	parts := strings.Split(rest, "/")
	resource := singular(parts[0])
	item := len(parts) > 1 && strings.HasPrefix(parts[1], "{")
	return ActionResource{Action: actionFor(method, item, singletons[resource]), Resource: resource}
}

func actionFor(method string, item, singleton bool) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		if item || singleton {
			return "get"
		}
		return "list"
	case http.MethodPut:
		if item {
			return "update"
		}
		return "create"
	case http.MethodPost:
		if item || singleton {
			return "update"
		}
		return "create"
	case http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func singular(s string) string {
	if strings.HasSuffix(s, "ies") {
		return strings.TrimSuffix(s, "ies") + "y"
	}
	return strings.TrimSuffix(s, "s")
}
