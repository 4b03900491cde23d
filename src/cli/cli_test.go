package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"vsnap/src/cli"
	"vsnap/src/config"
	"vsnap/src/dockerapi"
	"vsnap/src/runner"
	"vsnap/src/snapshot"
	"vsnap/src/util/progress"
	"vsnap/src/version"
)

// sharedFake survives the Close the CLI issues after every command.
type sharedFake struct{ *dockerapi.FakeClient }

func (sharedFake) Close() error { return nil }

type harness struct {
	t    *testing.T
	fake *dockerapi.FakeClient
	host string
}

func newHarness(t *testing.T) *harness {
	t.Setenv(config.EnvFile, "")
	fake := dockerapi.NewFake(t.TempDir())
	fake.Exec = runner.Run
	return &harness{t: t, fake: fake}
}

func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli.Run(context.Background(), args, &stdout, &stderr,
		cli.WithClientFactory(func(ctx context.Context, host string) (dockerapi.Client, error) {
			h.host = host
			return sharedFake{h.fake}, nil
		}),
		cli.WithStdin(strings.NewReader(stdin)),
		cli.WithProgress(progress.Discard),
	)
	return code, stdout.String(), stderr.String()
}

func TestRootHelp_ListsCommands(t *testing.T) {
	var out bytes.Buffer
	cmd := cli.NewRootCmd(&out, &out)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"create", "restore", "list", "drop", "verify", "version"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("help output missing %q:\n%s", name, out.String())
		}
	}
}

func TestGlobalFlags_Present(t *testing.T) {
	cmd := cli.NewRootCmd(nil, nil)
	for _, name := range []string{"config", "host", "image", "log-level", "log-format", "yes"} {
		if f := cmd.PersistentFlags().Lookup(name); f == nil {
			t.Fatalf("missing global flag --%s", name)
		}
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	code, out, _ := h.run("", "version", "--image", "custom:1")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.HasPrefix(out, version.Version+"\n") || !strings.Contains(out, "custom:1") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCreateListRestoreDrop(t *testing.T) {
	h := newHarness(t)
	dir, err := h.fake.AddVolume("pgdata", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "PG_VERSION"), []byte("16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code, out, errOut := h.run("", "create", "pgdata", "pg-clean", "-c"); code != 0 || !strings.Contains(out, "compressed snapshot pg-clean") {
		t.Fatalf("create: exit %d out %q err %q", code, out, errOut)
	}

	code, out, _ := h.run("", "list", "-o", "json", "--size")
	if code != 0 {
		t.Fatalf("list exit %d", code)
	}
	var infos []snapshot.SnapshotInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("list json: %v\n%s", err, out)
	}
	if len(infos) != 1 || infos[0].Name != "pg-clean" || !infos[0].Compressed || infos[0].SizeBytes == nil {
		t.Fatalf("unexpected list %+v", infos)
	}

	code, out, _ = h.run("", "list")
	if code != 0 || !strings.Contains(out, "NAME") || !strings.Contains(out, "pg-clean") || strings.Contains(out, "pgdata  ") {
		t.Fatalf("list table: exit %d\n%s", code, out)
	}

	if code, _, errOut := h.run("", "restore", "pg-clean", "pg-test"); code != 0 {
		t.Fatalf("restore: exit %d: %s", code, errOut)
	}
	b, err := os.ReadFile(filepath.Join(h.fake.VolumePath("pg-test"), "PG_VERSION"))
	if err != nil || string(b) != "16\n" {
		t.Fatalf("restored content %q, %v", b, err)
	}

	// declined prompt keeps the snapshot
	if code, _, _ := h.run("n\n", "drop", "pg-clean"); code != 1 || !h.fake.HasVolume("pg-clean") {
		t.Fatalf("declined drop: exit %d", code)
	}
	if code, out, _ := h.run("", "drop", "pg-clean", "--yes"); code != 0 || !strings.Contains(out, "Dropped") {
		t.Fatalf("drop: exit %d", code)
	}
	if h.fake.HasVolume("pg-clean") {
		t.Fatal("snapshot still present after drop")
	}
}

func TestRestore_OverwritePromptsForExistingDestination(t *testing.T) {
	h := newHarness(t)
	if _, err := h.fake.AddVolume("src", nil); err != nil {
		t.Fatal(err)
	}
	dst, err := h.fake.AddVolume("dst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "old"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := h.run("", "create", "src", "snap"); code != 0 {
		t.Fatalf("create exit %d", code)
	}

	code, _, errOut := h.run("", "restore", "snap", "dst")
	if code != snapshot.ExitPrecondition || !strings.Contains(errOut, "destination exists") {
		t.Fatalf("restore without overwrite: exit %d: %s", code, errOut)
	}

	code, _, errOut = h.run("no\n", "restore", "snap", "dst", "--overwrite")
	if code != 1 || !strings.Contains(errOut, "Replace the contents of volume dst") ||
		!strings.Contains(errOut, "Everything currently in volume dst will be deleted.") {
		t.Fatalf("declined overwrite: exit %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dst, "old")); err != nil {
		t.Fatalf("declined overwrite touched the destination: %v", err)
	}

	if code, _, errOut := h.run("y\n", "restore", "snap", "dst", "--overwrite", "--drop"); code != 0 {
		t.Fatalf("overwrite: exit %d: %s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dst, "old")); !os.IsNotExist(err) {
		t.Fatalf("overwrite kept old content: %v", err)
	}
	if h.fake.HasVolume("snap") {
		t.Fatal("--drop kept the snapshot")
	}
}

func TestExitCodes(t *testing.T) {
	h := newHarness(t)
	if code, _, _ := h.run("", "create", "missing", "snap"); code != snapshot.ExitPrecondition {
		t.Fatalf("missing source: exit %d", code)
	}
	if code, _, _ := h.run("", "verify", "nope"); code != snapshot.ExitPrecondition {
		t.Fatalf("verify missing: exit %d", code)
	}
	if code, _, _ := h.run("", "list", "-o", "yaml"); code != snapshot.ExitUnknown {
		t.Fatalf("bad output format: exit %d", code)
	}
	if code, _, _ := h.run("", "list", "--log-level", "loud"); code != snapshot.ExitUnknown {
		t.Fatalf("bad config: exit %d", code)
	}

	var stderr bytes.Buffer
	code := cli.Run(context.Background(), []string{"list"}, &bytes.Buffer{}, &stderr,
		cli.WithClientFactory(func(ctx context.Context, host string) (dockerapi.Client, error) {
			return nil, &dockerapi.Error{Op: "connect", Kind: dockerapi.KindDaemonUnreachable, Err: errors.New("dial unix: no such file")}
		}),
	)
	if code != snapshot.ExitUnreachable || !strings.Contains(stderr.String(), "daemon unreachable") {
		t.Fatalf("unreachable: exit %d: %s", code, stderr.String())
	}
}

func TestVerify_ReportsEntries(t *testing.T) {
	h := newHarness(t)
	dir, err := h.fake.AddVolume("src", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, _, _ := h.run("", "create", "src", "snap"); code != 0 {
		t.Fatalf("create exit %d", code)
	}
	code, out, _ := h.run("", "verify", "snap")
	if code != 0 || !strings.Contains(out, "Snapshot snap OK: 2 entries") {
		t.Fatalf("verify: exit %d %q", code, out)
	}
}

func TestHostFlagReachesFactory(t *testing.T) {
	h := newHarness(t)
	if code, _, errOut := h.run("", "list", "--host", "tcp://10.1.2.3:2375/"); code != 0 {
		t.Fatalf("list: exit %d: %s", code, errOut)
	}
	if h.host != "tcp://10.1.2.3:2375" {
		t.Fatalf("factory got host %q", h.host)
	}
}
