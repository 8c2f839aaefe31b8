package resolve_test

import (
	"testing"

	"marquee/internal/content"
	"marquee/internal/resolve"
)

func TestResolveTable(t *testing.T) {
	cases := []struct {
		name        string
		local       *content.Item
		remote      content.ManifestEntry
		want        resolve.Decision
		wantWarning bool
	}{
		{
			name:   "no local item",
			local:  nil,
			remote: content.ManifestEntry{ID: "x", Version: 1, Checksum: "a"},
			want:   resolve.TakeRemote,
		},
		{
			name:   "remote ahead",
			local:  &content.Item{ID: "x", Version: 2, Checksum: "a"},
			remote: content.ManifestEntry{ID: "x", Version: 3, Checksum: "b"},
			want:   resolve.TakeRemote,
		},
		{
			name:   "remote behind",
			local:  &content.Item{ID: "x", Version: 5, Checksum: "a"},
			remote: content.ManifestEntry{ID: "x", Version: 4, Checksum: "b"},
			want:   resolve.KeepLocal,
		},
		{
			name:   "equal versions matching checksums",
			local:  &content.Item{ID: "x", Version: 3, Checksum: "abc"},
			remote: content.ManifestEntry{ID: "x", Version: 3, Checksum: "ABC"},
			want:   resolve.KeepLocal,
		},
		{
			name:        "equal versions differing checksums",
			local:       &content.Item{ID: "x", Version: 3, Checksum: "abc"},
			remote:      content.ManifestEntry{ID: "x", Version: 3, Checksum: "def"},
			want:        resolve.TakeRemote,
			wantWarning: true,
		},
		{
			name:   "local edit holds while remote at base",
			local:  &content.Item{ID: "x", Version: 2, LocalEdit: true, BaseVersion: 2, Checksum: "a"},
			remote: content.ManifestEntry{ID: "x", Version: 2, Checksum: "b"},
			want:   resolve.KeepLocal,
		},
		{
			name:   "local edit yields once remote advances",
			local:  &content.Item{ID: "x", Version: 2, LocalEdit: true, BaseVersion: 2, Checksum: "a"},
			remote: content.ManifestEntry{ID: "x", Version: 3, Checksum: "b"},
			want:   resolve.TakeRemote,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolve.Resolve(tc.local, tc.remote)
			if got.Decision != tc.want {
				t.Fatalf("Resolve = %s, want %s", got.Decision, tc.want)
			}
			if got.IntegrityWarning != tc.wantWarning {
				t.Fatalf("IntegrityWarning = %v, want %v", got.IntegrityWarning, tc.wantWarning)
			}
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	local := &content.Item{ID: "x", Version: 4, Checksum: "a"}
	remote := content.ManifestEntry{ID: "x", Version: 5, Checksum: "b"}
	first := resolve.Resolve(local, remote)
	for i := 0; i < 100; i++ {
		if got := resolve.Resolve(local, remote); got != first {
			t.Fatalf("resolution changed between calls: %v vs %v", got, first)
		}
	}
}
