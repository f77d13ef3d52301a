package main_test

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"
	"text/scanner"

	"github.com/o2lab/parbam/analyzer"
	"github.com/o2lab/parbam/config"
	"github.com/o2lab/parbam/verifier"
	"github.com/rogpeppe/go-internal/testenv"
	log "github.com/sirupsen/logrus"
)

const testdata = "./tests/testdata"

type posKey struct {
	file string
	line int
}

func TestReachability(t *testing.T) {
	testenv.MustHaveGoBuild(t)
	dirs, err := os.ReadDir(testdata)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(testdata, d.Name())
		t.Run(d.Name(), func(t *testing.T) {
			want := loadTestData(t, dir)
			testOutput := bytes.NewBufferString("")
			results := runTest(t, dir, testOutput)
			checkOutput(t, want, results, TestData())
		})
	}
}

func checkOutput(t *testing.T, want map[posKey][]*regexp.Regexp, results map[token.Position][]string, root string) {
	checkMessage := func(posn token.Position, message string) {
		k := posKey{sanitize(root, posn.Filename), posn.Line}
		expects := want[k]
		var unmatched []string
		for i, exp := range expects {
			if exp.MatchString(message) {
				// matched: remove the expectation.
				expects[i] = expects[len(expects)-1]
				expects = expects[:len(expects)-1]
				want[k] = expects
				return
			}
			unmatched = append(unmatched, fmt.Sprintf("%q", exp))
		}
		if unmatched == nil {
			t.Errorf("%v: unexpected target: %v", posn, message)
		} else {
			t.Errorf("%v: %q does not match pattern %s", posn, message, strings.Join(unmatched, " or "))
		}
	}

	for pos, messages := range results {
		for _, m := range messages {
			checkMessage(pos, m)
		}
	}

	var surplus []string
	for key, expects := range want {
		for _, exp := range expects {
			surplus = append(surplus, fmt.Sprintf("%s:%d: no target was reported matching %q", key.file, key.line, exp))
		}
	}
	sort.Strings(surplus)
	for _, err := range surplus {
		t.Error(err)
	}
}

func loadTestData(t *testing.T, dir string) map[posKey][]*regexp.Regexp {
	t.Helper()
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, dir, nil, parser.ParseComments)
	if err != nil {
		t.Fatal(err)
	}
	root := TestData()
	want := make(map[posKey][]*regexp.Regexp)

	for _, pkg := range pkgs {
		for _, f := range pkg.Files {
			for _, cgroup := range f.Comments {
				for _, c := range cgroup.List {
					if text := strings.TrimPrefix(c.Text, "// want"); text != c.Text {
						text = strings.TrimSpace(text)

						expects, err := parseExpectations(text)
						if err != nil {
							t.Fatal(err)
						}
						if expects != nil {
							pos := fset.Position(c.Pos())
							abs, err := filepath.Abs(pos.Filename)
							if err != nil {
								t.Fatal(err)
							}
							want[posKey{sanitize(root, abs), pos.Line}] = expects
						}
					}
				}
			}
		}
	}
	return want
}

// parseExpectations parses the content of a "// want ..." comment
// and returns the parsed regular expression for each comment group.
func parseExpectations(text string) ([]*regexp.Regexp, error) {
	var scanErr string
	sc := new(scanner.Scanner).Init(strings.NewReader(text))
	sc.Error = func(s *scanner.Scanner, msg string) {
		scanErr = msg // e.g. bad string escape
	}
	sc.Mode = scanner.ScanStrings | scanner.ScanRawStrings

	scanRegexp := func(tok rune) (*regexp.Regexp, error) {
		if tok != scanner.String && tok != scanner.RawString {
			return nil, fmt.Errorf("got %s, want regular expression",
				scanner.TokenString(tok))
		}
		pattern, _ := strconv.Unquote(sc.TokenText()) // can't fail
		return regexp.Compile(pattern)
	}

	var expects []*regexp.Regexp
	for {
		tok := sc.Scan()
		switch tok {
		case scanner.String, scanner.RawString:
			rx, err := scanRegexp(tok)
			if err != nil {
				return nil, err
			}
			expects = append(expects, rx)

		case scanner.EOF:
			if scanErr != "" {
				return nil, fmt.Errorf("%s", scanErr)
			}
			return expects, nil

		default:
			return nil, fmt.Errorf("unexpected %s", scanner.TokenString(tok))
		}
	}
}

func runTest(t *testing.T, dir string, writer io.Writer) map[token.Position][]string {
	log.SetLevel(log.InfoLevel)
	log.SetOutput(writer)
	defer log.SetOutput(os.Stderr)

	cfg := config.Default()
	cfg.Workers = 4
	report, err := verifier.Verify(context.Background(), cfg, dir, []string{"."})
	if err != nil {
		t.Fatalf("verify %s: %v", dir, err)
	}
	out := make(map[token.Position][]string)
	if report.Verdict == analyzer.TargetFound {
		out[report.Target] = append(out[report.Target], fmt.Sprintf("%s reachable in %s", report.Reason, report.TargetFunction))
	}
	return out
}

// sanitize removes the repository root from the filename and returns the
// rest.
func sanitize(root, filename string) string {
	prefix := root + string(os.PathSeparator)
	return filepath.ToSlash(strings.TrimPrefix(filename, prefix))
}

// TestData returns the effective filename of the repository root.
// This function may be overridden by projects using
// an alternative build system (such as Blaze) that
// does not run a test in its package directory.
var TestData = func() string {
	root, err := filepath.Abs(".")
	if err != nil {
		log.Fatal(err)
	}
	return root
}
