package safety_test

import (
	"bytes"
	"strings"
	"testing"

	"vsnap/src/safety"
)

func TestConfirm_AutoYes(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer
	ok, err := safety.Confirm(safety.Options{Yes: true}, in, &out, "proceed?")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected auto-yes to confirm")
	}
	if out.Len() != 0 {
		t.Fatalf("auto-yes should not prompt; got %q", out.String())
	}
}

func TestConfirm_UserInput(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"Y\n", true},
		{"No\n", false},
		{"\n", false},
		{"", false},
	}
	for _, c := range cases {
		in := strings.NewReader(c.in)
		var out bytes.Buffer
		got, err := safety.Confirm(safety.Options{}, in, &out, "drop snapshot?")
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("input %q: got %v want %v", c.in, got, c.want)
		}
		if !strings.Contains(out.String(), "drop snapshot? [y/N]") {
			t.Fatalf("prompt missing question; got %q", out.String())
		}
	}
}

func TestConfirm_NilInputDeclines(t *testing.T) {
	ok, err := safety.Confirm(safety.Options{}, nil, nil, "proceed?")
	if err != nil || ok {
		t.Fatalf("got %v, %v; want decline", ok, err)
	}
}

func TestConfirmDestructive_StatesConsequence(t *testing.T) {
	var out bytes.Buffer
	ok, err := safety.ConfirmDestructive(safety.Options{}, strings.NewReader("y\n"), &out,
		"Drop snapshot nightly?", "This deletes the snapshot volume and the archive it holds.")
	if err != nil || !ok {
		t.Fatalf("got %v, %v; want confirm", ok, err)
	}
	want := "This deletes the snapshot volume and the archive it holds.\nDrop snapshot nightly? [y/N]: "
	if out.String() != want {
		t.Fatalf("prompt = %q, want %q", out.String(), want)
	}

	out.Reset()
	ok, err = safety.ConfirmDestructive(safety.Options{Yes: true}, nil, &out, "Drop?", "gone")
	if err != nil || !ok || out.Len() != 0 {
		t.Fatalf("auto-yes: got %v, %v, output %q", ok, err, out.String())
	}
}
