package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		in   string
		want bool
	}{
		{"internal segment", InternalImportForbidden, "amari/internal/taxonomy", true},
		{"internal suffix", InternalImportForbidden, "example.com/internal", true},
		{"internal lookalike", InternalImportForbidden, "example.com/notinternal/x", false},
		{"pkg", InternalImportForbidden, "amari/pkg/domain", false},
		{"service", ServiceImportForbidden, "amari/internal/core", true},
		{"service prefix lookalike", ServiceImportForbidden, "amari/internal/corex", false},
		{"infra child", ServiceImportForbidden, "amari/internal/infra/persistence/sqlite", true},
		{"engine", ServiceImportForbidden, "amari/internal/taxonomy", false},
		{"sqlite driver", StorageDriverForbidden, "modernc.org/sqlite/lib", true},
		{"aws", StorageDriverForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"yaml", StorageDriverForbidden, "gopkg.in/yaml.v3", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s: pred(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
	if AnyOf()("anything") {
		t.Fatalf("empty AnyOf must match nothing")
	}
}

func TestDirectImportsIgnoreTestsAndDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	writeFile(t, dir, "main_test.go", "package tmp\nimport \"amari/internal/core\"\n")
	writeFile(t, dir, "notes.txt", "import \"amari/internal/core\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport _ \"amari/internal/core\"\n")
	AssertNoDirectImports(t, dir, ServiceImportForbidden, "only direct non-test files count")
}

func TestDirectImportsReportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\tcore \"amari/internal/core\"\n\t_ \"modernc.org/sqlite\"\n)\nvar _ = core.ErrTreeUnavailable\n")
	viols, err := directImportViolations(dir, AnyOf(ServiceImportForbidden, StorageDriverForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 2 || !strings.HasPrefix(viols[0], "amari/internal/core (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	rec := &recordingFatal{}
	failIfViolations(rec, "direct imports", "engines stay pure", viols)
	if !strings.Contains(rec.msg, "engines stay pure") || !strings.Contains(rec.msg, "modernc.org/sqlite") {
		t.Fatalf("unexpected failure message %q", rec.msg)
	}
}

func TestDirectImportsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestTransitiveViolationsFromGoList(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\namari/pkg/domain\n\ngithub.com/jackc/pgx/v5/stdlib\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", StorageDriverForbidden)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/jackc/pgx/v5/stdlib" {
		t.Fatalf("unexpected violations %v", viols)
	}
	goListDeps = func(string) ([]byte, error) { return []byte("boom"), fmt.Errorf("exit 1") }
	if _, out, err := transitiveDependencyViolations(".", StorageDriverForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure to surface, got %v %q", err, out)
	}
}
