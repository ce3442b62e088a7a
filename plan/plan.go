// Package plan is the command-plan builder (component C, spec §4.C): it
// expands a Config into an ordered sequence of fully-formed Invocations,
// resolving inputs, output paths, and the argument template.
//
// This is a direct port of original_source/src/action.rs's Action::new
// (the expansion logic), with original_source/src/config.rs for field
// names and defaults, and spec §9's two supplemented input fields
// (InputDir, InputRecursive).
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogen85/cmdforge/errs"
)

// Config is the input record consumed by the plan builder (spec §3/§6).
// Every field besides Program, ArgsTemplate, ThreadsCount and InputList is
// optional; zero values are their documented defaults.
type Config struct {
	Program      string   `toml:"program"`
	ArgsTemplate string   `toml:"args_template"`
	ThreadsCount int      `toml:"threads_count"`
	RepeatCount  int      `toml:"repeat_count"` // 0 means "use default 1"
	InputList    []string `toml:"input_list"`

	// InputDir and InputRecursive supplement spec §3's InputList with the
	// original's alternate single-directory input form (see SPEC_FULL.md
	// §3, supplemented fields). InputRecursive defaults to flat expansion,
	// matching spec §9's binding resolution of the recursion Open Question.
	InputDir       string `toml:"input_dir"`
	InputRecursive bool   `toml:"input_recursive"`

	OutputDir       string `toml:"output_dir"`
	OutputExtension string `toml:"output_extension"`
	OutputPrefix    string `toml:"output_prefix"`
	OutputSuffix    string `toml:"output_suffix"`
	OutputRecursive bool   `toml:"output_recursive"`
	OutputAbsolute  bool   `toml:"output_absolute"`
	InputAbsolute   bool   `toml:"input_absolute"`
	OutputForce     bool   `toml:"output_force"`
	OutputSerial    bool   `toml:"output_serial"`

	CurrentDir string `toml:"current_dir"`

	// Pipe selects the stdio sink: "" discards, "<inherit>" inherits, any
	// other value is a file path opened for append (spec §3, §4.E).
	Pipe string `toml:"pipe"`

	IgnorePanic bool `toml:"ignore_panic"`
}

// Invocation is one concrete, ready-to-spawn command (spec's GLOSSARY).
type Invocation struct {
	Program    string
	Args       []string
	WorkingDir string
}

const outputFilePlaceholder = "{output_file}"

// Build expands cfg into an ordered invocation plan, or returns a *errs.Error
// of kind Config.
func Build(cfg Config) ([]Invocation, error) {
	if cfg.Program == "" {
		return nil, errs.New(errs.Config, "program is required", nil)
	}
	if cfg.ThreadsCount < 1 {
		return nil, errs.New(errs.Config, "threads_count must be >= 1", nil)
	}
	repeatCount := cfg.RepeatCount
	if repeatCount == 0 {
		repeatCount = 1
	}
	if repeatCount < 1 {
		return nil, errs.New(errs.Config, "repeat_count must be >= 1", nil)
	}

	inputFiles, err := expandInputs(cfg)
	if err != nil {
		return nil, err
	}
	if len(inputFiles) == 0 {
		return nil, errs.New(errs.Config, "no input files resolved from input_list/input_dir", nil)
	}

	if cfg.OutputRecursive {
		count := len(cfg.InputList)
		if cfg.InputDir != "" {
			count++
		}
		if count != 1 {
			return nil, errs.New(errs.Config, "output_recursive requires exactly one directory entry across input_list/input_dir", nil)
		}
	}

	pairs, err := buildOutputPairs(cfg, inputFiles)
	if err != nil {
		return nil, err
	}

	tokens, err := tokenizeTemplate(cfg.ArgsTemplate)
	if err != nil {
		return nil, err
	}

	var invocations []Invocation
	for _, pair := range pairs {
		for repeatNum := 1; repeatNum <= repeatCount; repeatNum++ {
			args := make([]string, 0, len(tokens))
			for _, tok := range tokens {
				args = append(args, substitute(tok, pair, repeatNum, cfg.OutputSerial))
			}
			invocations = append(invocations, Invocation{
				Program:    cfg.Program,
				Args:       args,
				WorkingDir: cfg.CurrentDir,
			})
		}
	}

	if len(invocations) == 0 {
		return nil, errs.New(errs.Config, "current config did not generate any commands", nil)
	}
	return invocations, nil
}

type ioPair struct {
	input  string
	output string
}

// expandInputs resolves input_list/input_dir entries into a flat list of
// regular files. A directory entry expands to the regular files directly
// within it unless InputRecursive is set (spec §9's exposed opt-in).
func expandInputs(cfg Config) ([]string, error) {
	var files []string
	visit := func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return errs.New(errs.Config, fmt.Sprintf("cannot resolve input path %q", path), err)
		}
		if !info.IsDir() {
			files = append(files, path)
			return nil
		}
		found, err := readDir(path, cfg.InputRecursive)
		if err != nil {
			return errs.New(errs.Config, fmt.Sprintf("read input dir %q failed", path), err)
		}
		files = append(files, found...)
		return nil
	}

	for _, item := range cfg.InputList {
		if err := visit(item); err != nil {
			return nil, err
		}
	}
	if cfg.InputDir != "" {
		if err := visit(cfg.InputDir); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func readDir(dir string, recursive bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if e.Type().IsRegular() {
			out = append(out, full)
			continue
		}
		if recursive && e.IsDir() {
			nested, err := readDir(full, recursive)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}
	return out, nil
}

// buildOutputPairs derives each input's output path (spec §4.C step 2).
func buildOutputPairs(cfg Config, inputFiles []string) ([]ioPair, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errs.New(errs.Other, "cannot resolve current working directory", err)
	}

	recursiveRoot := ""
	if cfg.OutputRecursive {
		switch {
		case len(cfg.InputList) == 1:
			recursiveRoot = cfg.InputList[0]
		case cfg.InputDir != "":
			recursiveRoot = cfg.InputDir
		}
	}

	pairs := make([]ioPair, 0, len(inputFiles))
	for _, inputFile := range inputFiles {
		stem := strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
		name := cfg.OutputPrefix + stem + cfg.OutputSuffix

		baseDir := cfg.OutputDir
		if baseDir == "" {
			baseDir = filepath.Dir(inputFile)
		}

		var outputFile string
		if cfg.OutputRecursive {
			rel, err := filepath.Rel(recursiveRoot, inputFile)
			if err != nil {
				return nil, errs.New(errs.Config, fmt.Sprintf("input %q is not under output_recursive root %q", inputFile, recursiveRoot), err)
			}
			outputFile = filepath.Join(baseDir, filepath.Dir(rel), name)
			if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
				return nil, errs.New(errs.Config, fmt.Sprintf("create output dir for %q failed", outputFile), err)
			}
		} else {
			outputFile = filepath.Join(baseDir, name)
		}

		ext := cfg.OutputExtension
		if ext == "" {
			ext = strings.TrimPrefix(filepath.Ext(inputFile), ".")
		}
		if ext != "" {
			outputFile = outputFile + "." + ext
		}

		finalInput := inputFile
		if cfg.InputAbsolute && !filepath.IsAbs(finalInput) {
			finalInput = filepath.Join(cwd, finalInput)
		}
		if cfg.OutputAbsolute && !filepath.IsAbs(outputFile) {
			outputFile = filepath.Join(cwd, outputFile)
		}

		if cfg.OutputForce {
			if err := os.Remove(outputFile); err != nil && !os.IsNotExist(err) {
				return nil, errs.New(errs.Config, fmt.Sprintf("remove existing output %q failed", outputFile), err)
			}
		}

		pairs = append(pairs, ioPair{input: finalInput, output: outputFile})
	}
	return pairs, nil
}

// tokenizeTemplate splits args_template on the double-quote character (spec
// §4.C step 3 / §6): odd-indexed segments (the text between a quote pair)
// are emitted verbatim as one token; even-indexed segments are whitespace
// split. The quote characters themselves are stripped, one of the two
// behaviors spec §9 leaves open for P7.
//
// A template is malformed if its quote characters don't pair up — i.e. an
// odd count of '"' bytes, not an odd count of split segments (segments are
// odd exactly when the quotes balance: n quotes produce n+1 segments).
func tokenizeTemplate(template string) ([]string, error) {
	if strings.Count(template, `"`)%2 == 1 {
		return nil, errs.New(errs.Config, "args_template has an unclosed quotation", nil)
	}
	segments := strings.Split(template, `"`)
	var tokens []string
	for i, seg := range segments {
		if i%2 == 1 {
			tokens = append(tokens, seg)
		} else {
			tokens = append(tokens, strings.Fields(seg)...)
		}
	}
	return tokens, nil
}

// substitute resolves one template token into its argument text for a given
// (input, output) pair and repeat number (spec §4.C step 4 table, plus the
// serial rule).
func substitute(token string, pair ioPair, repeatNum int, serial bool) string {
	switch token {
	case "{input_file}":
		return pair.input
	case outputFilePlaceholder:
		if serial {
			return serialOutputFile(pair.output, repeatNum)
		}
		return pair.output
	case "{output_dir}":
		return filepath.Dir(pair.output)
	case "{repeat_num}":
		return strconv.Itoa(repeatNum)
	default:
		return token
	}
}

// serialOutputFile injects "_<repeatNum>" between the stem and extension of
// an output path, for this invocation only (spec §4.C's serial rule).
func serialOutputFile(output string, repeatNum int) string {
	dir := filepath.Dir(output)
	base := filepath.Base(output)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := fmt.Sprintf("%s_%d%s", stem, repeatNum, ext)
	return filepath.Join(dir, name)
}
