package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/tessera/pkg/blocks"
)

// JUnit XML as consumed by CI systems: one testsuite per run, one
// testcase per result. Times are seconds with millisecond precision.

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

// WriteJUnit renders results as JUnit XML.
func WriteJUnit(w io.Writer, suiteName string, results []TestResult) error {
	sum := Summarize(results)
	suite := junitSuite{
		Name:     suiteName,
		Tests:    sum.Total,
		Failures: sum.Failed,
		Errors:   sum.Errored,
		Skipped:  sum.Skipped,
	}

	var total float64
	for i := range results {
		r := &results[i]
		total += r.Duration.Seconds()
		jc := junitCase{
			Name:      r.Name(),
			Classname: suiteName,
			Time:      fmt.Sprintf("%.3f", r.Duration.Seconds()),
		}
		switch r.Status {
		case blocks.StatusFailed:
			jc.Failure = &junitMessage{Message: firstLine(r.Error), Body: failureBody(r)}
		case blocks.StatusError:
			jc.Error = &junitMessage{Message: firstLine(r.Error), Body: r.Error}
		case blocks.StatusSkipped:
			jc.Skipped = &junitMessage{Message: r.SkipReason}
		}
		suite.Cases = append(suite.Cases, jc)
	}
	suite.Time = fmt.Sprintf("%.3f", total)

	doc := junitSuites{
		Tests:    sum.Total,
		Failures: sum.Failed,
		Errors:   sum.Errored,
		Skipped:  sum.Skipped,
		Suites:   []junitSuite{suite},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode junit: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteJUnitFile writes JUnit XML into the run directory as junit.xml.
func WriteJUnitFile(dir, suiteName string, results []TestResult) error {
	f, err := os.Create(filepath.Join(dir, JUnitFile))
	if err != nil {
		return fmt.Errorf("create junit file: %w", err)
	}
	if err := WriteJUnit(f, suiteName, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// failureBody joins the case error with any collected soft failures.
func failureBody(r *TestResult) string {
	var b strings.Builder
	b.WriteString(r.Error)
	for _, sf := range r.SoftFailures {
		b.WriteString("\n")
		if sf.StepID != "" {
			fmt.Fprintf(&b, "[%s] ", sf.StepID)
		}
		b.WriteString(sf.Message)
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
