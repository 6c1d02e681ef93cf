package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHumanBytes(t *testing.T) {
	tc := []struct {
		name string
		n    int64
		want string
	}{
		{
			name: "bytes",
			n:    512,
			want: "512 B",
		},
		{
			name: "kilobytes",
			n:    2048,
			want: "2.0 KB",
		},
		{
			name: "megabytes",
			n:    5 * 1024 * 1024,
			want: "5.0 MB",
		},
		{
			name: "fractional gigabytes",
			n:    1536 * 1024 * 1024,
			want: "1.5 GB",
		},
		{
			name: "zero",
			n:    0,
			want: "0 B",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := HumanBytes(tt.n)
			if got != tt.want {
				t.Errorf("HumanBytes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		name string
		ms   int
		want string
	}{
		{
			name: "under a minute",
			ms:   42 * 1000,
			want: "0:42",
		},
		{
			name: "minutes and seconds",
			ms:   225 * 1000,
			want: "3:45",
		},
		{
			name: "over an hour",
			ms:   (3600 + 2*60 + 9) * 1000,
			want: "1:02:09",
		},
		{
			name: "negative clamps to zero",
			ms:   -500,
			want: "0:00",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.ms)
			if got != tt.want {
				t.Errorf("FormatDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tc := []struct {
		name string
		path string
		want string
	}{
		{
			name: "tilde prefix",
			path: "~/fermata/data",
			want: filepath.Join(home, "fermata", "data"),
		},
		{
			name: "bare tilde",
			path: "~",
			want: home,
		},
		{
			name: "absolute path unchanged",
			path: "/var/lib/fermata",
			want: "/var/lib/fermata",
		},
		{
			name: "tilde in middle unchanged",
			path: "/data/~backup",
			want: "/data/~backup",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandHome(tt.path)
			if got != tt.want {
				t.Errorf("ExpandHome() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("GenerateID() returned empty string")
	}

	if a == b {
		t.Errorf("GenerateID() returned duplicate IDs: %v", a)
	}

	if len(a) != 36 {
		t.Errorf("GenerateID() length = %d, want 36", len(a))
	}
}
