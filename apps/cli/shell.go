package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/reporting"
)

const shellHelp = `commands:
  scores SUBJECT PERIOD   e.g. "scores math 2024-02", "scores all Semester 1"
  attendance YYYY-MM      e.g. "attendance 2024-02"
  quit`

// shell reads one selection per line. Every selection starts a fetch right away; when
// selections change faster than the backend answers, only the newest report is printed.
func (cli *commandLine) shell(ctx context.Context, classID, className string) error {
	session := reporting.NewSession()
	defer session.Close()

	var (
		wg    sync.WaitGroup
		outMu sync.Mutex // fetches print concurrently with the prompt loop
	)
	defer wg.Wait()
	printf := func(format string, a ...interface{}) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(cli.out, format, a...)
	}

	fmt.Fprintln(cli.out, shellHelp)
	scanner := bufio.NewScanner(cli.in)
	for scanner.Scan() {
		line := core.CleanString(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		fetch, err := cli.parseSelection(line, classID, className)
		if err != nil {
			printf("error: %v\n", err)
			continue
		}

		ticket, fctx := session.Begin(ctx, line)
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, err := fetch(fctx)
			if err != nil && fctx.Err() != nil {
				cli.logger.Debug("selection superseded", core.Fields{"selection": ticket.Key, "ticket": ticket.ID})
				return
			}
			committed := session.Commit(ticket, func() {
				if err != nil {
					printf("error: %v\n", err)
					return
				}
				outMu.Lock()
				defer outMu.Unlock()
				if err := report.RenderText(cli.out, t, report.TextOptions{PageRows: cli.pageRows()}); err != nil {
					cli.logger.Error("printing report", err, core.Fields{"selection": ticket.Key})
				}
			})
			if !committed {
				cli.logger.Debug("discarded stale report", core.Fields{"selection": ticket.Key, "ticket": ticket.ID})
			}
		}()
	}
	return errors.Wrap(scanner.Err(), "reading input")
}

type fetchFunc func(ctx context.Context) (report.Table, error)

func (cli *commandLine) parseSelection(line, classID, className string) (fetchFunc, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "scores":
		if len(fields) < 3 {
			return nil, errors.New("usage: scores SUBJECT PERIOD")
		}
		sel, err := scoreSelection(classID, className, fields[1], strings.Join(fields[2:], " "))
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (report.Table, error) {
			rep, err := cli.svc.ScoreReport(ctx, sel)
			if err != nil {
				return report.Table{}, err
			}
			return rep.Table(), nil
		}, nil
	case "attendance":
		if len(fields) != 2 {
			return nil, errors.New("usage: attendance YYYY-MM")
		}
		sel := reporting.AttendanceSelection{ClassID: classID, ClassName: className, Month: fields[1]}
		return func(ctx context.Context) (report.Table, error) {
			rep, err := cli.svc.AttendanceReport(ctx, sel)
			if err != nil {
				return report.Table{}, err
			}
			return rep.Table(), nil
		}, nil
	default:
		return nil, errors.Errorf("unknown command %q", fields[0])
	}
}
