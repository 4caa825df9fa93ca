package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	gtmfactory "github.com/milehighfry405/gtm-factory-sub000"
	"github.com/milehighfry405/gtm-factory-sub000/config"
	"github.com/milehighfry405/gtm-factory-sub000/core"
	"github.com/milehighfry405/gtm-factory-sub000/internal/util"
)

// app holds the global flags and the lazily built factory.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	root       string
	verbose    bool

	factory *gtmfactory.Factory
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gtm-factory",
		Short: "Multi-agent go-to-market research with a living document",
		Long: `gtm-factory runs research sessions as a sequence of drops.

Each session starts with a conversation that establishes a strategic brief.
A drop plans focused missions from the brief, runs them in parallel workers
after human approval, and merges the findings into the session's living
document. Contradicted claims are invalidated, never deleted; claims that
cannot be decided are marked contested for review.

Sessions are addressed as project/session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("GTM_FACTORY_CONFIG"), "config file (YAML or TOML)")
	root.PersistentFlags().StringVar(&a.root, "root", "", "session store directory (overrides store.root)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.sayCmd(),
		a.planCmd(),
		a.approveCmd(),
		a.rejectCmd(),
		a.executeCmd(),
		a.docCmd(),
		a.critiqueCmd(),
		a.exportCmd(),
		a.resolveCmd(),
		a.relatedCmd(),
		a.sessionsCmd(),
		a.reindexCmd(),
		a.recoverCmd(),
		a.abandonCmd(),
		a.closeCmd(),
	)
	return root
}

// open loads the configuration and builds the factory. An in-memory catalog
// starts empty in every process, so it is rebuilt from the session store.
func (a *app) open(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return &exitError{code: core.ExitUsage, err: err}
		}
		cfg = loaded
	}
	if a.root != "" {
		if cfg.Index.Catalog == config.CatalogSQLite && strings.HasPrefix(cfg.Index.Path, cfg.Store.Root) {
			cfg.Index.Path = a.root + strings.TrimPrefix(cfg.Index.Path, cfg.Store.Root)
		}
		cfg.Store.Root = a.root
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	f, err := gtmfactory.NewFromConfig(cfg)
	if err != nil {
		return &exitError{code: core.ExitUsage, err: err}
	}
	a.factory = f
	if cfg.Index.Catalog == config.CatalogMemory {
		if _, err := f.Reindex(cmd.Context()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() error {
	if a.factory == nil {
		return nil
	}
	err := a.factory.Close()
	a.factory = nil
	return err
}

func sessionRef(arg string) (core.SessionRef, error) {
	ref, err := core.ParseSessionRef(arg)
	if err != nil {
		return ref, &exitError{code: core.ExitUsage, err: err}
	}
	return ref, nil
}

// conversationRef accepts "project/session", or a bare project to start a
// session with a generated id.
func conversationRef(arg string) (ref core.SessionRef, started bool, err error) {
	if strings.Contains(arg, "/") {
		ref, err = sessionRef(arg)
		return ref, false, err
	}
	ref = core.SessionRef{ProjectID: arg, SessionID: util.NewID()}
	if err := ref.Validate(); err != nil {
		return ref, false, &exitError{code: core.ExitUsage, err: err}
	}
	return ref, true, nil
}

func (a *app) sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <project[/session]> <message>...",
		Short: "Add to the session's conversation and show the extracted brief",
		Long: `Appends a user message to the conversation and re-extracts the strategic
brief from the whole conversation. Fields that are still unknown are listed
with the clarifying questions that would establish them. A new session is
created on first use; given only a project, a session id is generated.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, started, err := conversationRef(args[0])
			if err != nil {
				return err
			}
			if started {
				heading.Fprintf(a.stdout, "Started session %s\n", ref)
			}
			res, err := a.factory.Converse(cmd.Context(), ref, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printBrief(a.stdout, res.Result.Brief, res.Result.Questions)
			return nil
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <project/session>",
		Short: "Propose the next drop from the strategic brief",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			plan, err := a.factory.Plan(cmd.Context(), ref)
			var pe *core.PlanningError
			if errors.As(err, &pe) {
				printQuestions(a.stdout, pe.Unknown, pe.Questions)
				return &exitError{code: core.ExitPlanning}
			}
			if err != nil {
				return err
			}
			printPlan(a.stdout, plan)
			return nil
		},
	}
}

func (a *app) approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <project/session>",
		Short: "Approve the proposed plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			if err := a.factory.Approve(cmd.Context(), ref); err != nil {
				return err
			}
			success.Fprintf(a.stdout, "Plan approved for %s. Run `gtm-factory execute %s`.\n", ref, ref)
			return nil
		},
	}
}

func (a *app) rejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <project/session> [feedback]...",
		Short: "Reject the proposed plan, optionally with feedback for the next one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			if err := a.factory.Reject(cmd.Context(), ref, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			warn.Fprintf(a.stdout, "Plan rejected. Refine the brief with `say` or plan again.\n")
			return nil
		},
	}
}

func (a *app) executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <project/session>",
		Short: "Run the approved drop and merge its findings",
		Long: `Runs every mission of the approved drop in parallel, merges the findings
into the living document and prints the drop summary. Worker failures do not
abort the drop; they are listed as unanswered questions and reflected in the
exit code (3). Contested claims exit with 4.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			summary, err := a.factory.Execute(cmd.Context(), ref)
			if err != nil {
				return err
			}
			printSummary(a.stdout, summary)
			if code := core.SummaryExitCode(summary); code != core.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func (a *app) docCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doc <project/session>",
		Short: "Print the living document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			md, err := a.factory.RenderDocument(cmd.Context(), ref)
			if err != nil {
				return err
			}
			printMarkdown(a.stdout, md)
			return nil
		},
	}
}

func (a *app) critiqueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "critique <project/session> <drop-id>",
		Short: "Print the critical analysis of a drop",
		Long: `Prints the weak evidence, unstated assumptions and open questions found in
the raw findings of a completed drop. Use it to steer the next conversation.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			analysis, err := a.factory.Analysis(cmd.Context(), ref, args[1])
			if err != nil {
				return err
			}
			printAnalysis(a.stdout, analysis)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		asHTML bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <project/session>",
		Short: "Export the living document as markdown or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			w := a.stdout
			if output != "" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			if asHTML {
				return a.factory.ExportHTML(cmd.Context(), ref, w)
			}
			md, err := a.factory.RenderDocument(cmd.Context(), ref)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, md)
			return err
		},
	}
	cmd.Flags().BoolVar(&asHTML, "html", false, "render HTML instead of markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <project/session> <claim-id>",
		Short: "Settle a contested claim in favour of claim-id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			doc, err := a.factory.Resolve(cmd.Context(), ref, args[1])
			if err != nil {
				return err
			}
			c := doc.Counts()
			success.Fprintf(a.stdout, "Resolved %s. Document v%d: %d active, %d invalidated, %d contested.\n",
				args[1], doc.Version, c.Active, c.Invalidated, c.Contested)
			return nil
		},
	}
}

func (a *app) relatedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "related <tag>...",
		Short: "Find prior drops and sessions by tag",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.factory.FindRelated(cmd.Context(), args, limit)
			if err != nil {
				return err
			}
			printRecords(a.stdout, recs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of records")
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions and their workflow state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := a.factory.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, ref := range refs {
				sess, err := a.factory.Session(cmd.Context(), ref)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%-40s %-24s drops=%d\n", ref, stateColor(sess.State).Sprint(sess.State), sess.Drops)
			}
			return nil
		},
	}
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the metadata catalog from the session store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.factory.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			success.Fprintf(a.stdout, "Indexed %d records.\n", n)
			return nil
		},
	}
}

func (a *app) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Return interrupted drops to plan_approved so they can run again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := a.factory.RecoverAll(cmd.Context())
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Fprintln(a.stdout, "Nothing to recover.")
				return nil
			}
			for _, ref := range refs {
				warn.Fprintf(a.stdout, "Recovered %s\n", ref)
			}
			return nil
		},
	}
}

func (a *app) abandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <project/session> [reason...]",
		Short: "Close an interrupted drop as all-failed instead of running it again",
		Long: `Records every mission of the open drop that has no result as failed,
summarizes the drop as all-failed and leaves the living document unchanged.
Use it when an interrupted drop should not be re-run; "recover" followed by
"execute" finishes it instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			summary, err := a.factory.Abandon(cmd.Context(), ref, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			printSummary(a.stdout, summary)
			return nil
		},
	}
}

func (a *app) closeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <project/session>",
		Short: "Close a session; closed sessions are read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := sessionRef(args[0])
			if err != nil {
				return err
			}
			if err := a.factory.CloseSession(cmd.Context(), ref); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Closed %s.\n", ref)
			return nil
		},
	}
}
