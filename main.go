package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/liut/parlor/htdocs"
	"github.com/liut/parlor/pkg/models/convo"
	"github.com/liut/parlor/pkg/services/highlight"
	"github.com/liut/parlor/pkg/settings"
	"github.com/liut/parlor/pkg/transcript"
	"github.com/liut/parlor/pkg/web"
)

func main() {
	var zlogger *zap.Logger
	if settings.InDevelop() {
		zlogger, _ = zap.NewDevelopment()
	} else {
		zlogger, _ = zap.NewProduction()
	}
	defer func() { _ = zlogger.Sync() }()
	zap.ReplaceGlobals(zlogger)

	app := &cli.App{
		Name:    strings.ToLower(settings.Name),
		Usage:   "agent conversation transcripts",
		Version: settings.Current.Version,
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the web server",
				Action: serve,
			},
			{
				Name:  "usage",
				Usage: "show environment settings",
				Action: func(c *cli.Context) error {
					return settings.Usage()
				},
			},
			{
				Name:      "render",
				Usage:     "print the transcript of an events file",
				ArgsUsage: "<events.json>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Value: "agent", Usage: "agent display name"},
					&cli.StringFlag{Name: "partial", Usage: "in-progress agent message"},
					&cli.BoolFlag{Name: "json", Usage: "output segments as json"},
					&cli.BoolFlag{Name: "highlight", Usage: "fill highlighted html of code, with --json"},
				},
				Action: render,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.S().Fatalw("run fail", "err", err)
	}
}

func serve(c *cli.Context) error {
	sugar := zap.S()
	srv := web.New(web.Config{
		Addr:       settings.Current.HTTPListen,
		Debug:      settings.InDevelop(),
		DocHandler: http.FileServer(http.FS(htdocs.FS())),
	})

	idleClosed := make(chan struct{})
	ctx := context.Background()
	go func() {
		quit := make(chan os.Signal, 2)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		sugar.Info("shuting down server...")
		if err := srv.Stop(ctx); err != nil {
			sugar.Infow("server shutdown:", "err", err)
		}
		close(idleClosed)
	}()

	if err := srv.Serve(ctx); err != nil {
		sugar.Infow("serve fail", "err", err)
	}

	<-idleClosed
	return nil
}

func render(c *cli.Context) error {
	name := c.Args().First()
	if len(name) == 0 {
		return cli.Exit("events file required", 1)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	var events convo.Events
	if err = json.Unmarshal(b, &events); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}

	seg := transcript.New(transcript.Options{
		CharDelay:         settings.Current.CharDelay,
		CodeAdvancesClock: settings.Current.CodeAdvancesClock,
		UserName:          settings.Current.UserName,
		AgentName:         c.String("agent"),
	})
	tr := seg.Build(events, c.String("partial"))

	if c.Bool("json") {
		if c.Bool("highlight") {
			hl := highlight.New(highlight.DefaultStyle)
			for i := range tr.Segments {
				if tr.Segments[i].Kind == transcript.KindAgentCode {
					tr.Segments[i].HTML = hl.HTML(tr.Segments[i].Text, tr.Segments[i].Language)
				}
			}
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(tr)
	}

	for _, s := range tr.Segments {
		if s.Kind == transcript.KindSectionBreak {
			fmt.Fprintf(c.App.Writer, "== %s ==\n", s.Name)
			continue
		}
		fmt.Fprintf(c.App.Writer, "[%s @%d] %s\n", s.Kind, s.RevealTime, s.Text)
	}
	return nil
}
