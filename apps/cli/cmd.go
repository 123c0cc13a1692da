package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/publish"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/core/roster"
)

// rows taken by the title, the subtitle and the prompt around a text page
const screenChrome = 4

var (
	termSizeFunc = term.GetSize // mockable
	nowFunc      = time.Now     // mockable

	errHelp = errors.New("help provided")
)

// ReportService is implemented by *reporting.Service.
type ReportService interface {
	ScoreReport(ctx context.Context, sel reporting.ScoreSelection) (reporting.ScoreReport, error)
	AttendanceReport(ctx context.Context, sel reporting.AttendanceSelection) (reporting.AttendanceReport, error)
	Publish(ctx context.Context, rep reporting.ScoreReport) (publish.Submission, error)
	DryRun(rep reporting.ScoreReport) (publish.Submission, error)
	TeacherClasses(ctx context.Context) ([]roster.Class, error)
}

var _ ReportService = (*reporting.Service)(nil)

type commandLine struct {
	conf    *core.Config
	logger  core.Logger
	svc     ReportService
	mailSvc core.EmailService
	in      io.Reader
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  classes - list the classes of the authenticated teacher")
	fmt.Fprintln(cli.out, "  scores -class ID -period LABEL|YYYY-MM [-subject ID|all] [-format txt|pdf|xlsx] [-out DIR] [-mail-to ADDR] - compute a score report")
	fmt.Fprintln(cli.out, "  attendance -class ID -month YYYY-MM [-format txt|pdf|xlsx] [-out DIR] [-mail-to ADDR] - build an attendance matrix")
	fmt.Fprintln(cli.out, "  publish -class ID -subject ID -period LABEL|YYYY-MM [-dry-run] - publish computed results")
	fmt.Fprintln(cli.out, "  shell -class ID - interactive reports, one selection per line")
}

type outputFlags struct {
	format *string
	outDir *string
	mailTo *string
}

func addOutputFlags(fs *flag.FlagSet) outputFlags {
	return outputFlags{
		format: fs.String("format", string(report.FormatText), "Export format: txt, pdf or xlsx."),
		outDir: fs.String("out", "", "Directory to write the export to. txt exports are printed when empty."),
		mailTo: fs.String("mail-to", "", "Comma separated addresses to mail the export to."),
	}
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	classesCmd := cli.newFlagSet("classes")

	scoresCmd := cli.newFlagSet("scores")
	scoresClass := scoresCmd.String("class", "", "The class ID.")
	scoresClassName := scoresCmd.String("class-name", "", "The class name shown on the report. Defaults to the class ID.")
	scoresSubject := scoresCmd.String("subject", roster.AllSubjects, "The subject ID, or \"all\".")
	scoresPeriod := scoresCmd.String("period", "", "\"Semester 1\", \"Semester 2\", \"Full Year\" or a YYYY-MM month.")
	scoresOutput := addOutputFlags(scoresCmd)

	attendanceCmd := cli.newFlagSet("attendance")
	attendanceClass := attendanceCmd.String("class", "", "The class ID.")
	attendanceClassName := attendanceCmd.String("class-name", "", "The class name shown on the report. Defaults to the class ID.")
	attendanceMonth := attendanceCmd.String("month", "", "The month, YYYY-MM.")
	attendanceOutput := addOutputFlags(attendanceCmd)

	publishCmd := cli.newFlagSet("publish")
	publishClass := publishCmd.String("class", "", "The class ID.")
	publishSubject := publishCmd.String("subject", "", "The subject ID. Results cannot be published for all subjects.")
	publishPeriod := publishCmd.String("period", "", "\"Semester 1\", \"Semester 2\", \"Full Year\" or a YYYY-MM month.")
	publishDryRun := publishCmd.Bool("dry-run", false, "Print the payload without sending it.")

	shellCmd := cli.newFlagSet("shell")
	shellClass := shellCmd.String("class", "", "The class ID.")
	shellClassName := shellCmd.String("class-name", "", "The class name shown on the reports. Defaults to the class ID.")

	switch args[1] {
	case "classes":
		if err := parseFlags(classesCmd, args[2:]); err != nil {
			return err
		}
		return cli.classes(ctx)
	case "scores":
		if err := parseFlags(scoresCmd, args[2:]); err != nil {
			return err
		}
		if *scoresClass == "" || *scoresPeriod == "" {
			scoresCmd.Usage()
			return errHelp
		}
		sel, err := scoreSelection(*scoresClass, *scoresClassName, *scoresSubject, *scoresPeriod)
		if err != nil {
			return err
		}
		return cli.scores(ctx, sel, scoresOutput)
	case "attendance":
		if err := parseFlags(attendanceCmd, args[2:]); err != nil {
			return err
		}
		if *attendanceClass == "" || *attendanceMonth == "" {
			attendanceCmd.Usage()
			return errHelp
		}
		sel := reporting.AttendanceSelection{ClassID: *attendanceClass, ClassName: *attendanceClassName, Month: *attendanceMonth}
		return cli.attendance(ctx, sel, attendanceOutput)
	case "publish":
		if err := parseFlags(publishCmd, args[2:]); err != nil {
			return err
		}
		if *publishClass == "" || *publishSubject == "" || *publishPeriod == "" {
			publishCmd.Usage()
			return errHelp
		}
		sel, err := scoreSelection(*publishClass, "", *publishSubject, *publishPeriod)
		if err != nil {
			return err
		}
		return cli.publish(ctx, sel, *publishDryRun)
	case "shell":
		if err := parseFlags(shellCmd, args[2:]); err != nil {
			return err
		}
		if *shellClass == "" {
			shellCmd.Usage()
			return errHelp
		}
		return cli.shell(ctx, *shellClass, *shellClassName)
	default:
		cli.printUsage()
		return errHelp
	}
}

func scoreSelection(classID, className, subjectID, periodStr string) (reporting.ScoreSelection, error) {
	p, err := period.Parse(periodStr)
	if err != nil {
		return reporting.ScoreSelection{}, err
	}
	return reporting.ScoreSelection{
		ClassID:   classID,
		ClassName: className,
		SubjectID: subjectID,
		Period:    p,
	}, nil
}

func (cli *commandLine) classes(ctx context.Context) error {
	classes, err := cli.svc.TeacherClasses(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName")
	for _, c := range classes {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Name)
	}
	return tw.Flush()
}

func (cli *commandLine) scores(ctx context.Context, sel reporting.ScoreSelection, out outputFlags) error {
	rep, err := cli.svc.ScoreReport(ctx, sel)
	if err != nil {
		return err
	}
	return cli.emit(ctx, rep.Table(), out)
}

func (cli *commandLine) attendance(ctx context.Context, sel reporting.AttendanceSelection, out outputFlags) error {
	rep, err := cli.svc.AttendanceReport(ctx, sel)
	if err != nil {
		return err
	}
	return cli.emit(ctx, rep.Table(), out)
}

func (cli *commandLine) publish(ctx context.Context, sel reporting.ScoreSelection, dryRun bool) error {
	rep, err := cli.svc.ScoreReport(ctx, sel)
	if err != nil {
		return err
	}

	var sub publish.Submission
	if dryRun {
		sub, err = cli.svc.DryRun(rep)
	} else {
		sub, err = cli.svc.Publish(ctx, rep)
	}
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling submission")
	}
	fmt.Fprintln(cli.out, string(data))
	if dryRun {
		fmt.Fprintf(cli.out, "dry run: %d results not sent\n", len(sub.Results))
	} else {
		fmt.Fprintf(cli.out, "published %d results for %s\n", len(sub.Results), sub.AcademicPeriod)
	}
	return nil
}

// emit renders `t` once, then prints, writes and mails that same rendering as asked.
func (cli *commandLine) emit(ctx context.Context, t report.Table, out outputFlags) error {
	format, err := report.ParseFormat(*out.format)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	opts := report.ExportOptions{
		Text: report.TextOptions{PageRows: cli.pageRows()},
		PDF: report.PDFOptions{
			PageSize:    cli.conf.Report.PageSize,
			FontFamily:  cli.conf.Report.FontFamily,
			FontFile:    cli.conf.Report.FontFile,
			GeneratedAt: nowFunc(),
		},
	}
	if err := report.Export(&buf, t, format, opts); err != nil {
		return errors.Wrap(err, "exporting "+string(format))
	}

	switch {
	case *out.outDir != "":
		if err := cli.writeFile(*out.outDir, format.Filename(t), buf.Bytes()); err != nil {
			return err
		}
	case format == report.FormatText:
		if _, err := cli.out.Write(buf.Bytes()); err != nil {
			return err
		}
	default:
		if err := cli.writeFile(cli.conf.Report.OutputDir, format.Filename(t), buf.Bytes()); err != nil {
			return err
		}
	}

	if *out.mailTo != "" {
		return cli.mail(ctx, *out.mailTo, t, format, buf.Bytes())
	}
	return nil
}

func (cli *commandLine) writeFile(dir, name string, data []byte) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing export")
	}
	fmt.Fprintf(cli.out, "wrote %s\n", path)
	return nil
}

func (cli *commandLine) mail(ctx context.Context, to string, t report.Table, format report.Format, data []byte) error {
	addrs, err := mail.ParseAddressList(to)
	if err != nil {
		return core.NewValidationError(
			errors.Wrap(err, "parsing -mail-to"),
			core.FieldError{Field: "mail-to", Error: "must be a comma separated list of email addresses"},
		)
	}
	msg := &core.EmailMessage{
		Subject: strings.TrimSpace(t.Title + " " + t.Subtitle),
		Body:    "Please find the " + strings.ToLower(t.Title) + " report attached.",
	}
	for _, a := range addrs {
		msg.To = append(msg.To, *a)
	}
	msg.Attach(format.Filename(t), data, format.ContentType())

	if err := cli.mailSvc.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "mailing export")
	}
	fmt.Fprintf(cli.out, "mailed %s to %s\n", format.Filename(t), to)
	return nil
}

// pageRows fits text pages to the terminal height; 0 (one page) when stdout is not a terminal.
func (cli *commandLine) pageRows() int {
	_, height, err := termSizeFunc(int(os.Stdout.Fd()))
	if err != nil || height <= screenChrome+1 {
		return 0
	}
	return height - screenChrome
}
