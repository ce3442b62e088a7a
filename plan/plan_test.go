package plan

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeTemp(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("os.WriteFile(%s): %v", p, err)
	}
	return p
}

func TestBuildHappyPath(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.txt")
	b := writeTemp(t, dir, "b.txt")

	cfg := Config{
		Program:      "/bin/echo",
		ArgsTemplate: "{input_file} {output_file}",
		ThreadsCount: 2,
		InputList:    []string{a, b},
		OutputDir:    dir,
	}
	got, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 invocations, got %d", len(got))
	}
	for _, inv := range got {
		if len(inv.Args) != 2 {
			t.Errorf("want 2 args, got %v", inv.Args)
		}
	}
}

func TestBuildRepeatCountAndPlaceholders(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.txt")

	cfg := Config{
		Program:      "/bin/echo",
		ArgsTemplate: "{input_file} {output_file} {repeat_num} {output_dir}",
		ThreadsCount: 1,
		RepeatCount:  3,
		InputList:    []string{a},
		OutputDir:    dir,
		OutputSerial: true,
	}
	got, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 invocations (repeat_count), got %d", len(got))
	}
	for i, inv := range got {
		wantNum := i + 1
		if inv.Args[2] != strconv.Itoa(wantNum) {
			t.Errorf("invocation %d: repeat_num = %s, want %d", i, inv.Args[2], wantNum)
		}
		if inv.Args[3] != dir {
			t.Errorf("invocation %d: output_dir = %s, want %s", i, inv.Args[3], dir)
		}
	}
	// output_serial must distinguish each repeat's {output_file}.
	if got[0].Args[1] == got[1].Args[1] {
		t.Errorf("serial output files must differ: %s == %s", got[0].Args[1], got[1].Args[1])
	}
}

func TestTokenizeTemplateQuotedArg(t *testing.T) {
	toks, err := tokenizeTemplate(`-x "hello world" {input_file}`)
	if err != nil {
		t.Fatalf("tokenizeTemplate: %v", err)
	}
	want := []string{"-x", "hello world", "{input_file}"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestTokenizeTemplateUnclosedQuote(t *testing.T) {
	_, err := tokenizeTemplate(`-x "unterminated`)
	if err == nil {
		t.Fatal("want error for unclosed quote")
	}
}

func TestTokenizeTemplateEmbeddedQuotePairIsBalanced(t *testing.T) {
	// Two quote characters total (even): `" a \"b c\" d"`-shaped input from
	// spec's scenario 3 must tokenize, not error.
	toks, err := tokenizeTemplate(` a "b c" d`)
	if err != nil {
		t.Fatalf("tokenizeTemplate: %v", err)
	}
	want := []string{"a", "b c", "d"}
	if len(toks) != len(want) {
		t.Fatalf("got %v, want %v", toks, want)
	}
}

func TestBuildRejectsMissingProgram(t *testing.T) {
	_, err := Build(Config{ThreadsCount: 1, InputList: []string{"x"}})
	if err == nil {
		t.Fatal("want error for missing program")
	}
}

func TestBuildRejectsZeroThreads(t *testing.T) {
	_, err := Build(Config{Program: "/bin/echo", InputList: []string{"x"}})
	if err == nil {
		t.Fatal("want error for threads_count < 1")
	}
}

func TestBuildOutputRecursiveRequiresSingleDir(t *testing.T) {
	dir := t.TempDir()
	a := writeTemp(t, dir, "a.txt")
	b := writeTemp(t, dir, "b.txt")
	cfg := Config{
		Program:         "/bin/echo",
		ArgsTemplate:    "{input_file}",
		ThreadsCount:    1,
		InputList:       []string{a, b},
		OutputRecursive: true,
	}
	if _, err := Build(cfg); err == nil {
		t.Fatal("want error: output_recursive with more than one input entry")
	}
}

func TestBuildOutputRecursiveNestedDirectory(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	subDir := filepath.Join(inDir, "sub")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeTemp(t, subDir, "x.txt")

	cfg := Config{
		Program:         "/bin/echo",
		ArgsTemplate:    "{output_file}",
		ThreadsCount:    1,
		InputList:       []string{inDir},
		InputRecursive:  true,
		OutputDir:       outDir,
		OutputRecursive: true,
		OutputExtension: "out",
	}
	got, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 invocation, got %d", len(got))
	}

	want := filepath.Join(outDir, "sub", "x.out")
	if got[0].Args[0] != want {
		t.Fatalf("output_file = %s, want %s", got[0].Args[0], want)
	}

	info, err := os.Stat(filepath.Join(outDir, "sub"))
	if err != nil {
		t.Fatalf("output subdirectory must be created on disk before spawn: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("%s exists but is not a directory", filepath.Join(outDir, "sub"))
	}
}
