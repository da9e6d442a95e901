package preflight

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/randomizedcoder/go-suite-runner/internal/catalog"
)

func TestProber_Probe(t *testing.T) {
	p := NewProber(nil)
	p.lookPath = func(name string) (string, error) {
		if name == "casperjs" {
			return "/usr/bin/casperjs", nil
		}
		return "", errors.New("not found")
	}
	p.run = func(_ context.Context, argv []string) error {
		if argv[len(argv)-1] == "import zmq" {
			return nil
		}
		return errors.New("exit status 1")
	}

	deps := []catalog.Dependency{
		{Name: "zmq", Probe: []string{"python3", "-c", "import zmq"}},
		{Name: "qt", Probe: []string{"python3", "-c", "import PyQt4"}},
		{Name: "casperjs", Binary: "casperjs"},
		{Name: "pandoc", Binary: "pandoc"},
	}

	got := p.Probe(context.Background(), deps)
	want := map[string]bool{"zmq": true, "qt": false, "casperjs": true, "pandoc": false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Probe() = %v, want %v", got, want)
	}
}

func TestProber_BinaryAndProbe(t *testing.T) {
	p := NewProber(nil)
	var probes atomic.Int32
	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	p.run = func(context.Context, []string) error {
		probes.Add(1)
		return nil
	}

	got := p.Probe(context.Background(), []catalog.Dependency{
		{Name: "tool", Binary: "tool", Probe: []string{"tool", "--check"}},
	})
	if got["tool"] {
		t.Error("missing binary should make the dependency unavailable")
	}
	if probes.Load() != 0 {
		t.Error("probe should not run when the binary is missing")
	}
}

func TestProber_RespectsLimit(t *testing.T) {
	p := NewProber(nil)
	p.Limit = 2

	var active, peak atomic.Int32
	release := make(chan struct{})
	p.run = func(context.Context, []string) error {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	}

	deps := make([]catalog.Dependency, 6)
	for i := range deps {
		deps[i] = catalog.Dependency{Name: string(rune('a' + i)), Probe: []string{"x"}}
	}

	done := make(chan map[string]bool)
	go func() { done <- p.Probe(context.Background(), deps) }()
	close(release)
	have := <-done

	if len(have) != 6 {
		t.Errorf("probed %d deps, want 6", len(have))
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", peak.Load())
	}
}

func TestProber_RealCommands(t *testing.T) {
	p := NewProber(nil)
	got := p.Probe(context.Background(), []catalog.Dependency{
		{Name: "shell", Binary: "sh"},
		{Name: "truthy", Probe: []string{"sh", "-c", "exit 0"}},
		{Name: "falsy", Probe: []string{"sh", "-c", "exit 3"}},
	})
	want := map[string]bool{"shell": true, "truthy": true, "falsy": false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Probe() = %v, want %v", got, want)
	}
}

func TestSysInfo_Report(t *testing.T) {
	info := CollectSysInfo("1.2.3")
	info.Catalog = "built-in"
	info.Interpreter = "/usr/bin/python3"
	info.InterpreterVer = "Python 3.12.1"
	info.Available = []string{"jinja2", "zmq"}
	info.Missing = []string{"qt"}

	report := info.Report()
	for _, want := range []string{
		"go-suite-runner version: 1.2.3",
		"Interpreter version    : Python 3.12.1",
		"Tools and libraries available at test time:\n   jinja2 zmq\n",
		"Tools and libraries NOT available at test time:\n   qt\n",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestSysInfo_ReportNoDependencies(t *testing.T) {
	report := CollectSysInfo("dev").Report()
	if strings.Contains(report, "Tools and libraries") {
		t.Errorf("no dependency sections expected:\n%s", report)
	}
}

func TestCompressUser(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		t.Skip("no usable home directory")
	}
	if got := compressUser(home + "/bin/python"); got != "~/bin/python" {
		t.Errorf("compressUser() = %q", got)
	}
	if got := compressUser("/opt/python"); got != "/opt/python" {
		t.Errorf("compressUser() = %q", got)
	}
}
