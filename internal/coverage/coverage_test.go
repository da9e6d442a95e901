package coverage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

func TestRunConfig_Render(t *testing.T) {
	rc := RunConfig{
		DataFile: "/work/core.coverage-data",
		Sources:  []string{"IPython.core", "IPython.utils"},
	}
	want := "[run]\n" +
		"data_file = /work/core.coverage-data\n" +
		"source =\n" +
		"  IPython.core\n" +
		"  IPython.utils\n"
	if got := rc.Render(); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRunConfig_Write(t *testing.T) {
	rc := RunConfig{
		Path:     filepath.Join(t.TempDir(), RunConfigName),
		DataFile: "/x",
		Sources:  []string{"pkg"},
	}
	if err := rc.Write(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(rc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != rc.Render() {
		t.Errorf("file = %q", data)
	}
}

type recorder struct {
	calls [][]string
	fail  string // step argv[0]+argv[1] prefix to fail
}

func (r *recorder) run(_ context.Context, _ string, argv []string) ([]byte, error) {
	r.calls = append(r.calls, argv)
	if r.fail != "" && strings.Join(argv, " ") == r.fail {
		return []byte("coverage exploded"), errors.New("exit status 1")
	}
	return nil, nil
}

func testSpec() catalog.Coverage {
	return catalog.Coverage{
		DataFile: ".coverage",
		HTMLDir:  "htmlcov",
		XMLFile:  "cov.xml",
		Combine:  []string{"cov", "combine", "--data-file={data_file}", "{inputs}"},
		HTML:     []string{"cov", "html", "--directory={html_dir}"},
		XML:      []string{"cov", "xml", "-o", "{xml_file}"},
	}
}

func writeData(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n+DataSuffix)
		if err := os.WriteFile(p, []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestService_Merge(t *testing.T) {
	dir := t.TempDir()
	abs, _ := filepath.Abs(dir)
	files := writeData(t, dir, "core", "lib")
	missing := filepath.Join(dir, "failed"+DataSuffix)

	testCases := []struct {
		name  string
		mode  string
		calls [][]string
	}{
		{
			name: "data only",
			mode: ModeData,
			calls: [][]string{
				{"cov", "combine", "--data-file=" + abs + "/.coverage", files[0], files[1]},
			},
		},
		{
			name: "html",
			mode: ModeHTML,
			calls: [][]string{
				{"cov", "combine", "--data-file=" + abs + "/.coverage", files[0], files[1]},
				{"cov", "html", "--directory=" + abs + "/htmlcov"},
			},
		},
		{
			name: "xml",
			mode: ModeXML,
			calls: [][]string{
				{"cov", "combine", "--data-file=" + abs + "/.coverage", files[0], files[1]},
				{"cov", "xml", "-o", abs + "/cov.xml"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			s := NewService(dir, testSpec(), nil, nil)
			s.run = rec.run

			res, err := s.Merge(context.Background(), tc.mode, append(files, missing))
			if err != nil {
				t.Fatalf("Merge() error: %v", err)
			}
			if !reflect.DeepEqual(rec.calls, tc.calls) {
				t.Errorf("calls =\n%v\nwant\n%v", rec.calls, tc.calls)
			}
			if !reflect.DeepEqual(res.Inputs, files) {
				t.Errorf("Inputs = %v, want %v", res.Inputs, files)
			}
		})
	}
}

func TestService_MergeHTMLRemovesOldReport(t *testing.T) {
	dir := t.TempDir()
	files := writeData(t, dir, "core")
	stale := filepath.Join(dir, "htmlcov", "stale.html")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	s := NewService(dir, testSpec(), nil, &out)
	s.run = (&recorder{}).run

	if _, err := s.Merge(context.Background(), ModeHTML, files); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("old report should be removed")
	}
	if !strings.Contains(out.String(), "Writing HTML coverage report to") || !strings.HasSuffix(out.String(), "done.\n") {
		t.Errorf("progress output = %q", out.String())
	}
}

func TestService_MergeNoData(t *testing.T) {
	s := NewService(t.TempDir(), testSpec(), nil, nil)
	s.run = (&recorder{}).run

	_, err := s.Merge(context.Background(), ModeData, []string{"/nonexistent/core.coverage-data"})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Merge() = %v, want ErrNoData", err)
	}
}

func TestService_MergeCommandFailure(t *testing.T) {
	dir := t.TempDir()
	files := writeData(t, dir, "core")
	abs, _ := filepath.Abs(dir)

	rec := &recorder{fail: "cov xml -o " + abs + "/cov.xml"}
	s := NewService(dir, testSpec(), nil, nil)
	s.run = rec.run

	_, err := s.Merge(context.Background(), ModeXML, files)
	if err == nil || !strings.Contains(err.Error(), "coverage exploded") {
		t.Errorf("Merge() = %v, want command output in error", err)
	}
}

func TestService_MergeWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	files := writeData(t, dir, "core")

	other := flock.New(filepath.Join(dir, LockName))
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer other.Close()

	s := NewService(dir, testSpec(), nil, nil)
	s.run = (&recorder{}).run
	s.LockTimeout = 100 * time.Millisecond

	if _, err := s.Merge(context.Background(), ModeData, files); err == nil {
		t.Fatal("Merge() should fail while another process holds the lock")
	}

	other.Unlock()
	if _, err := s.Merge(context.Background(), ModeData, files); err != nil {
		t.Errorf("Merge() after unlock: %v", err)
	}
}

func TestService_MergeRealCommands(t *testing.T) {
	dir := t.TempDir()
	files := writeData(t, dir, "core", "lib")

	spec := catalog.Coverage{
		DataFile: "combined",
		XMLFile:  "report.xml",
		Combine:  []string{"sh", "-c", `out=$1; shift; cat "$@" > "$out"`, "sh", "{data_file}", "{inputs}"},
		XML:      []string{"sh", "-c", `echo "<coverage/>" > "$1"`, "sh", "{xml_file}"},
	}
	s := NewService(dir, spec, nil, nil)

	res, err := s.Merge(context.Background(), ModeXML, files)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	combined, err := os.ReadFile(res.DataFile)
	if err != nil || string(combined) != "corelib" {
		t.Errorf("combined = %q, %v", combined, err)
	}
	if _, err := os.Stat(res.XMLFile); err != nil {
		t.Errorf("xml report missing: %v", err)
	}
}
