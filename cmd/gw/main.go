package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"giveaway/internal/app"
	"giveaway/internal/config"
	"giveaway/internal/db"
	"giveaway/internal/domain"
	"giveaway/internal/engine"
	"giveaway/internal/extract"
	"giveaway/internal/logging"
	"giveaway/internal/metrics"
	"giveaway/internal/migrate"
	"giveaway/internal/output"
	"giveaway/internal/repo"
	"giveaway/internal/server"
	"giveaway/internal/source"
)

// noWorkspace marks commands that run without a .giveaway directory.
const noWorkspace = "no-workspace"

var rootCmd = &cobra.Command{
	Use:   "gw",
	Short: "Giveaway CLI",
	Long: `gw collects who retweeted, liked or followed, merges them into one
participant pool and draws reproducible winners.
- Workspace: the .giveaway directory holding the database; giveaway.yml seeds new campaigns.
- Campaign: one giveaway post with its sources, filters and lottery settings.
- Harvest: walks each configured source until the list stops growing and stores the identifiers.
- Draw: seeded random or weighted lottery over the filtered pool, validated before it is stored.
- Event log: every harvest and draw, view with 'gw log tail'.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[noWorkspace] != "" {
			return nil
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		output.RenderError(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GIVEAWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("campaign", "", "campaign id (overrides giveaway.yml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("campaign", rootCmd.PersistentFlags().Lookup("campaign"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return domain.Wrap(domain.ErrConfiguration, err, "invalid flags")
	})
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(participantsCmd())
	rootCmd.AddCommand(drawCmd())
	rootCmd.AddCommand(drawsCmd())
	rootCmd.AddCommand(quickCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() zerolog.Logger {
	return logging.New(os.Stderr, viper.GetBool("verbose"))
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	c.AddCommand(campaignConfigCmd())
	return c
}

func campaignCreateCmd() *cobra.Command {
	var id, postURL, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil || cfg.Campaign.ID != id {
				cfg = config.Default(id)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				e := engine.New(r.DB, cfg)
				e.Logger = newLogger()
				c, err := e.CreateCampaign(ctx, id, postURL, desc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "campaign id")
	cmd.Flags().StringVar(&postURL, "url", "", "giveaway post url")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "URL", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.URL, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func campaignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCampaign(ctx, e.Config.Campaign.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"campaign": c, "config": e.Config})
			})
		},
	}
}

func campaignConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage campaign config",
	}
	cfg.AddCommand(campaignConfigShowCmd())
	cfg.AddCommand(campaignConfigImportCmd())
	return cfg
}

func campaignConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show campaign config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				data, err := e.Config.ToYAML()
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			})
		},
	}
}

func campaignConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import campaign config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			if viper.GetString("campaign") == "" {
				viper.Set("campaign", cfg.Campaign.ID)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				campaignID := e.Config.Campaign.ID
				cfg.Campaign.ID = campaignID
				if err := e.ImportConfig(ctx, campaignID, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func harvestCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Collect identifiers from the configured sources",
		Long:  "Walks each source until no new identifiers appear and replaces the stored list for that kind. Without --kind only the kinds required by the filters are collected (retweets when none are required).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				want, err := harvestKinds(e.Config, kinds)
				if err != nil {
					return err
				}
				providers, err := buildProviders(viper.GetString("workspace"), e.Config, want, sessionTokens{
					AuthToken: viper.GetString("auth-token"),
					CSRFToken: viper.GetString("csrf-token"),
				})
				if err != nil {
					return err
				}
				reports, err := e.Harvest(ctx, e.Config.Campaign.ID, providers, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Kind", "Identifiers", "Iterations", "Stop", "Skipped", "Attempts"})
				for _, rep := range reports {
					tw.AppendRow(table.Row{rep.Kind, len(rep.Identifiers), rep.Iterations, rep.Reason, rep.Skipped, rep.Attempts})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "interaction kinds to collect (retweet, like, follower)")
	return cmd
}

func participantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "List eligible participants after filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ps, stats, err := e.Participants(ctx, e.Config.Campaign.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": ps, "statistics": stats})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Username", "Types", "Weight"})
				for _, p := range ps {
					tw.AppendRow(table.Row{"@" + p.Identifier, kindList(p.Kinds), p.Weight})
				}
				tw.AppendFooter(table.Row{"Total", stats.Total, ""})
				tw.Render()
				fmt.Printf("Multiple actions: %d\n", stats.MultiKind)
				return nil
			})
		},
	}
}

// lotteryFlags are the draw overrides shared by draw and quick.
type lotteryFlags struct {
	winners         int
	weighted        bool
	seed            int64
	allowDuplicates bool
	format          string
	file            string
}

func (f *lotteryFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.winners, "winners", "n", 0, "number of winners")
	cmd.Flags().BoolVar(&f.weighted, "weighted", false, "weight by number of interaction kinds")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed; derived from the clock when unset")
	cmd.Flags().BoolVar(&f.allowDuplicates, "allow-duplicates", false, "allow fewer participants than winners")
	cmd.Flags().StringVarP(&f.format, "output", "o", "", "output format: text, json or csv")
	cmd.Flags().StringVar(&f.file, "file", "", "also write a JSON summary to this path")
}

// apply overlays the flags the user set onto cfg. The returned bool reports
// whether the seed was derived from the clock.
func (f *lotteryFlags) apply(cmd *cobra.Command, cfg *config.Config) (domain.LotteryConfig, bool) {
	lc := cfg.LotteryConfig(time.Now().UnixNano())
	derived := cfg.Lottery.Seed == nil
	flags := cmd.Flags()
	if flags.Changed("winners") {
		lc.Winners = f.winners
	}
	if flags.Changed("weighted") {
		lc.Weighted = f.weighted
	}
	if flags.Changed("seed") {
		lc.Seed = f.seed
		derived = false
	}
	if flags.Changed("allow-duplicates") {
		lc.AllowDuplicates = f.allowDuplicates
	}
	return lc, derived
}

func (f *lotteryFlags) renderer(cfg *config.Config) output.Renderer {
	format := cfg.Output.Format
	if f.format != "" {
		format = f.format
	}
	if viper.GetBool("json") {
		format = output.FormatJSON
	}
	return output.Renderer{Format: format, W: os.Stdout}
}

func (f *lotteryFlags) emit(cfg *config.Config, rep output.Report) error {
	if err := f.renderer(cfg).Render(rep); err != nil {
		return err
	}
	path := cfg.Output.File
	if f.file != "" {
		path = f.file
	}
	if path == "" {
		return nil
	}
	return output.WriteFile(path, rep)
}

func drawCmd() *cobra.Command {
	var flags lotteryFlags
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw winners from the harvested participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				campaignID := e.Config.Campaign.ID
				lc, derived := flags.apply(cmd, e.Config)
				if derived {
					fmt.Fprintf(os.Stderr, "seed: %d (pass --seed %d to reproduce)\n", lc.Seed, lc.Seed)
				}
				ps, stats, err := e.Participants(ctx, campaignID)
				if err != nil {
					return err
				}
				d, err := e.Draw(ctx, campaignID, lc, viper.GetString("actor-id"))
				if err != nil {
					if d.ID != "" {
						e.Logger.Error().Str("draw", d.ID).Msg("rejected draw stored for audit")
					}
					return err
				}
				c, err := e.Repo.GetCampaign(ctx, campaignID)
				if err != nil {
					return err
				}
				return flags.emit(e.Config, output.Report{
					Result:       d.Result,
					Statistics:   stats,
					Participants: ps,
					Validation:   domain.ValidationReport{Valid: d.Valid, Reason: d.Reason},
					Metadata: output.Metadata{
						URL:       c.URL,
						Timestamp: parseTS(d.CreatedAt),
						Filters:   e.Config.FilterSpec(),
					},
				})
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func drawsCmd() *cobra.Command {
	c := &cobra.Command{Use: "draws", Short: "Inspect stored draws"}
	c.AddCommand(drawsListCmd())
	c.AddCommand(drawsShowCmd())
	return c
}

func drawsListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List draws of the active campaign, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDraws(ctx, e.Config.Campaign.ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Created", "Method", "Seed", "Winners", "Valid"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.CreatedAt, d.Result.Method, d.Result.Seed, len(d.Result.Winners), d.Valid})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of draws")
	return cmd
}

func drawsShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <draw-id>",
		Short: "Show a stored draw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				d, err := r.GetDraw(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				rep := output.Report{
					Result:     d.Result,
					Statistics: domain.Statistics{Total: d.Result.ParticipantCount},
					Validation: domain.ValidationReport{Valid: d.Valid, Reason: d.Reason},
					Metadata:   output.Metadata{Timestamp: parseTS(d.CreatedAt)},
				}
				if c, err := r.GetCampaign(ctx, d.CampaignID); err == nil {
					rep.Metadata.URL = c.URL
				}
				if err := (output.Renderer{Format: format, W: os.Stdout}).Render(rep); err != nil {
					return err
				}
				if !d.Valid {
					fmt.Printf("REJECTED: %s\n", d.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatText, "output format: text, json or csv")
	return cmd
}

func quickCmd() *cobra.Command {
	var (
		flags                    lotteryFlags
		retweets, likes, follows string
		filters                  domain.FilterSpec
	)
	cmd := &cobra.Command{
		Use:         "quick",
		Short:       "One-shot draw over identifier files, no workspace",
		Long:        "Reads one identifier per line (or a JSON array) per kind, merges, filters and draws. Nothing is stored.",
		Annotations: map[string]string{noWorkspace: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()
			cfg := config.Default("quick")
			files := map[domain.InteractionKind]string{
				domain.KindRetweet:  retweets,
				domain.KindLike:     likes,
				domain.KindFollower: follows,
			}
			lists := make(map[domain.InteractionKind][]string)
			for _, kind := range domain.Kinds() {
				path := files[kind]
				if path == "" {
					continue
				}
				l, err := source.LoadFile(path, cfg.Extraction.BatchSize)
				if err != nil {
					return domain.Wrap(domain.ErrConfiguration, err, "cannot read "+path)
				}
				res, err := extract.Run(ctx, l, extract.Options{
					MaxIterations: cfg.Extraction.MaxIterations,
					StallLimit:    cfg.Extraction.StallLimit,
					Observer:      logging.Observer(log, kind),
				})
				if err != nil {
					return err
				}
				if res.Reason == extract.StopCanceled {
					return ctx.Err()
				}
				lists[kind] = res.Identifiers
			}
			if len(lists) == 0 {
				return domain.Errorf(domain.ErrConfiguration, "pass at least one of --retweets, --likes, --followers")
			}
			lc, derived := flags.apply(cmd, cfg)
			if derived {
				fmt.Fprintf(os.Stderr, "seed: %d (pass --seed %d to reproduce)\n", lc.Seed, lc.Seed)
			}
			e := engine.Engine{Logger: log, Now: time.Now}
			out, err := e.DrawLists(lists, filters, lc)
			if err != nil {
				return err
			}
			return flags.emit(cfg, output.Report{
				Result:       out.Result,
				Statistics:   out.Statistics,
				Participants: out.Participants,
				Validation:   out.Validation,
				Metadata:     output.Metadata{Timestamp: time.Now().UTC(), Filters: filters},
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&retweets, "retweets", "", "file of retweeters")
	cmd.Flags().StringVar(&likes, "likes", "", "file of likers")
	cmd.Flags().StringVar(&follows, "followers", "", "file of followers")
	cmd.Flags().BoolVar(&filters.RequireRetweet, "require-retweet", false, "participants must have retweeted")
	cmd.Flags().BoolVar(&filters.RequireLike, "require-like", false, "participants must have liked")
	cmd.Flags().BoolVar(&filters.RequireFollow, "require-follow", false, "participants must follow")
	cmd.Flags().StringSliceVar(&filters.Exclude, "exclude", nil, "identifiers to exclude")
	cmd.Flags().StringSliceVar(&filters.Include, "include", nil, "only these identifiers are eligible")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys for gw serve"}
	c.AddCommand(apiKeyCreateCmd())
	c.AddCommand(apiKeyListCmd())
	c.AddCommand(apiKeyRevokeCmd())
	return c
}

func apiKeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key, rec, err := repo.NewAPIKey(viper.GetString("actor-id"), name, time.Now())
				if err != nil {
					return err
				}
				if err := r.InsertAPIKey(ctx, nil, rec); err != nil {
					return err
				}
				// The plaintext key is shown once and never stored.
				return printJSONOrTable(map[string]string{"id": rec.ID, "actor_id": rec.ActorID, "key": key})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Issue a bearer token for the current actor (needs GIVEAWAY_JWT_SECRET)",
		Annotations: map[string]string{noWorkspace: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return domain.Errorf(domain.ErrConfiguration, "GIVEAWAY_JWT_SECRET is required to sign tokens")
			}
			token, err := server.IssueToken(secret, viper.GetString("actor-id"), ttl, time.Now())
			if err != nil {
				return domain.Wrap(domain.ErrConfiguration, err, "cannot issue token")
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 never expires")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every campaign creation, harvest and draw, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Campaign.ID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowActorHeader,
			}
			if authCfg.JWTSecret == "" {
				return domain.Errorf(domain.ErrConfiguration, "GIVEAWAY_JWT_SECRET is required for bearer auth")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				log := logging.JSON(os.Stderr, viper.GetBool("verbose"))
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				e.Metrics = metrics.New(reg)
				e.Logger = log

				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth:     authCfg,
					Gatherer: reg,
					Logger:   log,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e.Repo, e.Config.Webhooks, log)

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving giveaway API (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "dev-actor-header", false, "trust X-Actor-Id without credentials (local development only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	actorID := viper.GetString("actor-id")
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		create := func(ctx context.Context, id string, cfg *config.Config) error {
			_, err := engine.New(r.DB, cfg).CreateCampaign(ctx, id, cfg.Campaign.URL, cfg.Campaign.Description, actorID)
			return err
		}
		_, cfg, err := app.ResolveCampaignAndConfig(ctx, workspace, viper.GetString("campaign"), actorID, create, r)
		if err != nil {
			return err
		}
		e := engine.New(r.DB, cfg)
		e.Logger = newLogger()
		return fn(ctx, e)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func kindList(kinds []domain.InteractionKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func parseTS(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}
