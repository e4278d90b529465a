// Package pathmap implements bidirectional longest-prefix translation
// between host and container filesystem paths.
package pathmap

import "strings"

// Mappings is a {host_prefix: container_prefix} table. The same table
// drives both Forward and Reverse; Reverse keys on the container side.
type Mappings map[string]string

// Forward maps a host path to its container path using the longest
// matching host_prefix. Paths with no matching prefix are returned
// unchanged.
func Forward(path string, mappings Mappings) string {
	bestPrefix := ""
	bestReplacement := ""
	for hostPrefix, containerPrefix := range mappings {
		if strings.HasPrefix(path, hostPrefix) && len(hostPrefix) > len(bestPrefix) {
			bestPrefix = hostPrefix
			bestReplacement = containerPrefix
		}
	}
	if bestPrefix == "" {
		return path
	}
	return bestReplacement + path[len(bestPrefix):]
}

// Reverse maps a container path back to its host path using the longest
// matching container_prefix. Symmetric to Forward.
func Reverse(path string, mappings Mappings) string {
	bestContainer := ""
	bestHost := ""
	for hostPrefix, containerPrefix := range mappings {
		if strings.HasPrefix(path, containerPrefix) && len(containerPrefix) > len(bestContainer) {
			bestContainer = containerPrefix
			bestHost = hostPrefix
		}
	}
	if bestContainer == "" {
		return path
	}
	return bestHost + path[len(bestContainer):]
}

// ForwardURI applies Forward to the path portion of a file:// or
// vscode://file URI, reassembling the scheme afterward. obsidian:// and
// https:// URIs, and any other scheme, pass through unchanged. A nil
// input returns nil.
func ForwardURI(uri *string, mappings Mappings) *string {
	if uri == nil {
		return nil
	}
	switch {
	case strings.HasPrefix(*uri, "file://"):
		path := strings.TrimPrefix(*uri, "file://")
		mapped := "file://" + Forward(path, mappings)
		return &mapped
	case strings.HasPrefix(*uri, "vscode://file"):
		path := strings.TrimPrefix(*uri, "vscode://file")
		mapped := "vscode://file" + Forward(path, mappings)
		return &mapped
	default:
		return uri
	}
}
