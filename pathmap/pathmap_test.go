package pathmap

import "testing"

func TestForwardLongestPrefix(t *testing.T) {
	mappings := Mappings{
		"/Users/me/NanoClaw/":               "/workspace/",
		"/Users/me/NanoClaw/groups/kitchen/": "/workspace/group/",
	}
	got := Forward("/Users/me/NanoClaw/groups/kitchen/notes.md", mappings)
	want := "/workspace/group/notes.md"
	if got != want {
		t.Fatalf("Forward() = %q, want %q", got, want)
	}
}

func TestForwardNoMatch(t *testing.T) {
	mappings := Mappings{"/a/": "/b/"}
	if got := Forward("/c/d.md", mappings); got != "/c/d.md" {
		t.Fatalf("Forward() = %q, want unchanged", got)
	}
}

func TestForwardReverseRoundTrip(t *testing.T) {
	mappings := Mappings{
		"/Users/me/NanoClaw/":               "/workspace/",
		"/Users/me/NanoClaw/groups/kitchen/": "/workspace/group/",
	}
	paths := []string{
		"/Users/me/NanoClaw/groups/kitchen/notes.md",
		"/Users/me/NanoClaw/other/file.txt",
	}
	for _, p := range paths {
		forward := Forward(p, mappings)
		back := Reverse(forward, mappings)
		if back != p {
			t.Fatalf("round trip failed for %q: forward=%q back=%q", p, forward, back)
		}
	}
}

func TestReverseNoMatchReturnsUnchanged(t *testing.T) {
	mappings := Mappings{"/a/": "/b/"}
	if got := Reverse("/c/d.md", mappings); got != "/c/d.md" {
		t.Fatalf("Reverse() = %q, want unchanged", got)
	}
}

func TestForwardURISchemes(t *testing.T) {
	mappings := Mappings{"/host/": "/container/"}

	fileURI := "file:///host/notes.md"
	got := ForwardURI(&fileURI, mappings)
	if got == nil || *got != "file:///container/notes.md" {
		t.Fatalf("ForwardURI(file) = %v", got)
	}

	vscodeURI := "vscode://file/host/notes.md"
	got = ForwardURI(&vscodeURI, mappings)
	if got == nil || *got != "vscode://file/container/notes.md" {
		t.Fatalf("ForwardURI(vscode) = %v", got)
	}

	obsidianURI := "obsidian://open?vault=x"
	got = ForwardURI(&obsidianURI, mappings)
	if got == nil || *got != obsidianURI {
		t.Fatalf("ForwardURI(obsidian) should pass through unchanged, got %v", got)
	}

	httpsURI := "https://example.com/page"
	got = ForwardURI(&httpsURI, mappings)
	if got == nil || *got != httpsURI {
		t.Fatalf("ForwardURI(https) should pass through unchanged, got %v", got)
	}

	if got := ForwardURI(nil, mappings); got != nil {
		t.Fatalf("ForwardURI(nil) = %v, want nil", got)
	}
}
