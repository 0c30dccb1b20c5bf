package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ewhitman/davit/pkg/events"
	"github.com/ewhitman/davit/pkg/events/message"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/pipeline"
	util_log "github.com/ewhitman/davit/pkg/util/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/weaveworks/common/logging"
	"gopkg.in/yaml.v2"
)

type config struct {
	Log      util_log.Config `yaml:"log"`
	Pipeline pipeline.Config `yaml:",inline"`
}

var (
	configPath string

	dataTypeFlag string
	selectAll    bool
	noUnpack     bool

	sortPath   string
	statusFlag string
)

var rootCmd = &cobra.Command{
	Use:           "davit",
	Short:         "Pulls R2R data packages from the source SFTP server, inventories them, and sorts them into landing zones.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Harvest remote metadata, build the inventory, then fetch and unpack selected packages.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		cfg.Pipeline.DataType = dataTypeFlag
		cfg.Pipeline.SelectAll = selectAll
		cfg.Pipeline.NoUnpack = noUnpack

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := pipeline.New(ctx, cfg.Pipeline, prometheus.NewPedanticRegistry(), util_log.Logger)
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		return p.Run(ctx, os.Stdin, os.Stdout)
	},
}

var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Validate, unpack and place tarballs already sitting in the landing dir.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		dir := cfg.Pipeline.Landing.Dir
		if sortPath != "" {
			dir = sortPath
		}
		if dir == "" {
			return errors.New("no landing dir configured; set landing.dir or pass --path")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := pipeline.New(ctx, cfg.Pipeline, prometheus.NewPedanticRegistry(), util_log.Logger)
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		return p.Sort(ctx, dir)
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Render the current inventory records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		if statusFlag != "" && !record.IsValidStatus(statusFlag) {
			return errors.Errorf("unknown status %q", statusFlag)
		}

		ctx := cmd.Context()
		p, err := pipeline.New(ctx, cfg.Pipeline, prometheus.NewPedanticRegistry(), util_log.Logger)
		if err != nil {
			return err
		}
		defer p.Close(ctx)

		var recs []*record.Record
		if statusFlag != "" {
			recs, err = p.Inventory().GetRecordsByStatus(ctx, statusFlag)
		} else {
			recs, err = p.Inventory().GetAllRecords(ctx)
		}
		if err != nil {
			return err
		}

		if dataTypeFlag != "" {
			recs = lo.Filter(recs, func(r *record.Record, _ int) bool { return r.DataType == dataTypeFlag })
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FILESET\tCRUISE\tSHIP\tINSTRUMENT\tTYPE\tSIZE\tDATE\tSTATUS")
		for _, rec := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				rec.FilesetID, rec.CruiseID, rec.VesselName, rec.InstrumentName,
				rec.DataType, rec.HumanSize(), rec.DateDir, rec.Status)
		}
		return w.Flush()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to pipeline status events and print them as they arrive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		sub, err := events.NewSubscriber(cfg.Pipeline.Events, util_log.Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := sub.Sub(events.Channel, func(msg *message.Message) {
			fmt.Printf("%s\t%s\n", msg.FilesetID, msg.Status)
		}); err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the davit config file (default: davit.yaml in . or /etc/davit)")

	pullCmd.Flags().StringVar(&dataTypeFlag, "data-type", "", "Skip the data-type prompt and pull this type")
	pullCmd.Flags().BoolVar(&selectAll, "all", false, "Select every candidate, skip the pick prompt")
	pullCmd.Flags().BoolVar(&noUnpack, "no-unpack", false, "Stop after fetch; run 'davit sort' later")

	sortCmd.Flags().StringVar(&sortPath, "path", "", "Landing dir to sort (default: the configured landing dir)")

	inventoryCmd.Flags().StringVar(&statusFlag, "status", "", "Only show records with this status")
	inventoryCmd.Flags().StringVar(&dataTypeFlag, "data-type", "", "Only show records with this data type")

	rootCmd.AddCommand(pullCmd, sortCmd, inventoryCmd, watchCmd)
}

// loadConfig locates the config file through viper, parses it, and applies
// env overrides for the secrets that should stay out of the file.
func loadConfig(path string) (*config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("davit")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/davit")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("DAVIT")
	v.BindEnv("sftp_password")
	v.BindEnv("pg_conn")
	v.BindEnv("minio_secret_key")

	cfg := config{}
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, errors.Wrap(err, "read config file")
		}
		// No config file is fine; env and flags still apply.
	} else {
		raw, err := os.ReadFile(v.ConfigFileUsed())
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, "unmarshal config file")
		}
	}

	if s := v.GetString("sftp_password"); s != "" {
		if err := cfg.Pipeline.SFTP.Password.Set(s); err != nil {
			return nil, errors.Wrap(err, "set sftp password override")
		}
	}
	if s := v.GetString("pg_conn"); s != "" {
		if err := cfg.Pipeline.Inventory.Pg.Conn.Set(s); err != nil {
			return nil, errors.Wrap(err, "set pg conn override")
		}
	}
	if s := v.GetString("minio_secret_key"); s != "" {
		if err := cfg.Pipeline.Sink.Minio.SecretKey.Set(s); err != nil {
			return nil, errors.Wrap(err, "set minio secret key override")
		}
	}

	util_log.InitLogger(&cfg.Log)
	return &cfg, nil
}

func main() {
	// Errors raised before the config-driven logger is up still get logged.
	var lvl logging.Level
	var format logging.Format
	_ = lvl.Set("info")
	_ = format.Set("logfmt")
	util_log.Logger = util_log.NewDefaultLogger(lvl, format)

	util_log.CheckFatal("running davit", rootCmd.Execute())
}
