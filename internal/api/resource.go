package api

import (
	"fmt"
	"strings"
)

// Resource names one backend collection
type Resource string

const (
	ResourceRooms        Resource = "rooms"
	ResourceDevices      Resource = "devices"
	ResourceGroups       Resource = "groups"
	ResourceScenes       Resource = "scenes"
	ResourceSceneActions Resource = "scene-actions"
	ResourceHistory      Resource = "history"
)

// AllResources lists every resource in display order
var AllResources = []Resource{
	ResourceRooms,
	ResourceDevices,
	ResourceGroups,
	ResourceScenes,
	ResourceSceneActions,
	ResourceHistory,
}

var resourceAliases = map[string]Resource{
	"room":          ResourceRooms,
	"device":        ResourceDevices,
	"group":         ResourceGroups,
	"scene":         ResourceScenes,
	"action":        ResourceSceneActions,
	"actions":       ResourceSceneActions,
	"scene-action":  ResourceSceneActions,
	"scene_actions": ResourceSceneActions,
}

// ParseResource accepts canonical names plus a few singular aliases
func ParseResource(s string) (Resource, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range AllResources {
		if string(r) == s {
			return r, nil
		}
	}
	if r, ok := resourceAliases[s]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// Title returns a display label
func (r Resource) Title() string {
	switch r {
	case ResourceSceneActions:
		return "Scene actions"
	case "":
		return ""
	default:
		return strings.ToUpper(string(r[:1])) + string(r[1:])
	}
}
