package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"vsnap/src/archive"
	"vsnap/src/runner"
)

func messages(t *testing.T, out []byte) []archive.Message {
	t.Helper()
	var ms []archive.Message
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m, ok := archive.ParseMessage(sc.Bytes())
		if !ok {
			t.Fatalf("unexpected stdout line %q", sc.Text())
		}
		ms = append(ms, m)
	}
	return ms
}

func run(t *testing.T, args ...string) (int, []archive.Message, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runner.Run(context.Background(), args, &stdout, &stderr)
	return code, messages(t, stdout.Bytes()), stderr.String()
}

func TestRunner_ArchiveExtractVerify(t *testing.T) {
	src, snap, dst := t.TempDir(), t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, ms, stderr := run(t, "archive", "--compress", src, snap)
	if code != archive.ExitOK {
		t.Fatalf("archive exit %d: %s", code, stderr)
	}
	if len(ms) == 0 {
		t.Fatalf("archive printed no progress")
	}
	last := ms[len(ms)-1]
	if last.Type != archive.TypeProgress || last.Done != 5 || last.Total != 5 {
		t.Fatalf("final progress = %+v, want done=total=5", last)
	}

	code, ms, _ = run(t, "size", "--compress", snap)
	if code != archive.ExitOK || len(ms) != 1 || ms[0].Type != archive.TypeSize || ms[0].Bytes <= 0 {
		t.Fatalf("size: code %d messages %+v", code, ms)
	}

	code, ms, _ = run(t, "verify", "--compress", snap)
	if code != archive.ExitOK {
		t.Fatalf("verify exit %d", code)
	}
	if got := ms[len(ms)-1]; got.Type != archive.TypeVerify || got.Entries != 2 {
		t.Fatalf("verify result = %+v, want 2 entries", got)
	}

	if code, _, stderr := run(t, "extract", "--compress", "--clear", snap, dst); code != archive.ExitOK {
		t.Fatalf("extract exit %d: %s", code, stderr)
	}
	b, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil || string(b) != "alpha" {
		t.Fatalf("extracted content = %q, %v", b, err)
	}

	code, ms, _ = run(t, "probe", dst)
	if code != archive.ExitOK || len(ms) != 1 || ms[0].Entries != 1 {
		t.Fatalf("probe: code %d messages %+v", code, ms)
	}
}

func TestRunner_ExitCodes(t *testing.T) {
	empty := t.TempDir()
	cases := []struct {
		name string
		args []string
		want int
	}{
		{"unknown command", []string{"explode"}, archive.ExitUsage},
		{"missing args", []string{"archive", empty}, archive.ExitUsage},
		{"unknown flag", []string{"size", "--bogus", empty}, archive.ExitUsage},
		{"corrupt layout", []string{"verify", empty}, archive.ExitCorrupt},
		{"missing dir", []string{"probe", filepath.Join(empty, "nope")}, archive.ExitFailure},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			code, _, stderr := run(t, c.args...)
			if code != c.want {
				t.Fatalf("exit %d, want %d (stderr %q)", code, c.want, stderr)
			}
		})
	}
}
