// Command cli computes, exports and publishes class reports from the terminal.
package main

import (
	"log"
	"os"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/period"
	"github.com/trezcool/ripoti/core/reporting"
	"github.com/trezcool/ripoti/services/backend"
	emailsvc "github.com/trezcool/ripoti/services/email"
	logsvc "github.com/trezcool/ripoti/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "CLI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	period.InitValidators(validate, translator)

	// the CLI has no caller to forward a token from: it always uses the service token
	client := backend.NewClient(backend.Options{
		BaseURL:    conf.Backend.BaseURL,
		Token:      conf.Backend.Token,
		Timeout:    conf.Backend.Timeout,
		Validate:   validate,
		Translator: translator,
	})

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stderr, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cli := commandLine{
		conf:    conf,
		logger:  logger,
		svc:     reporting.NewService(client, conf.Publish.ResultType, logger),
		mailSvc: mailSvc,
		in:      os.Stdin,
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
