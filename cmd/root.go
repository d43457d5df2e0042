package cmd

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/sqldb"
)

type (
	Cmd struct {
		rootCmd     *cobra.Command
		logger      klog.Logger
		log         *klog.LevelLogger
		version     string
		rootFlags   rootFlags
		queryFlags  queryFlags
		outputFlags outputFlags
		listFlags   listFlags
		docFlags    docFlags
	}

	rootFlags struct {
		cfgFile  string
		logLevel string
		dbFile   string
		driver   string
	}
)

func New() *Cmd {
	return &Cmd{}
}

func (c *Cmd) Execute() {
	buildinfo := ReadVCSBuildInfo()
	c.version = buildinfo.ModVersion
	if overrideVersion := os.Getenv("PQUERY_OVERRIDE_VERSION"); overrideVersion != "" {
		c.version = overrideVersion
	}
	rootCmd := &cobra.Command{
		Use:   "pquery",
		Short: "Runs a parameterized user lookup",
		Long: `Runs a parameterized user lookup against a local sqlite database

With no subcommand, pquery executes:

	SELECT * FROM users WHERE username = ?

binding the configured username (default admin) as the parameter, and prints
the matching rows.`,
		Version:           c.version,
		Args:              cobra.NoArgs,
		PersistentPreRun:  c.initConfig,
		Run:               c.execQuery,
		DisableAutoGenTag: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/.pquery.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.dbFile, "db", "", "sqlite database file (default is example.db)")
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.driver, "driver", "", "database/sql driver name (default is sqlite)")
	rootCmd.SetVersionTemplate(buildinfo.VersionTemplate())
	c.addQueryFlags(rootCmd)
	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.getQueryCmd())
	rootCmd.AddCommand(c.getSetupCmd())
	rootCmd.AddCommand(c.getListCmd())
	rootCmd.AddCommand(c.getDocCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func (c *Cmd) initConfig(cmd *cobra.Command, args []string) {
	c.logger = klog.New(
		klog.OptHandler(klog.NewTextSlogHandler(os.Stderr)),
		klog.OptMinLevelStr(c.rootFlags.logLevel),
	)
	c.log = klog.NewLevelLogger(c.logger)

	viper.SetDefault("db.driver", sqldb.DriverSQLite)
	viper.SetDefault("db.file", "example.db")
	viper.SetDefault("query.username", "admin")
	viper.SetDefault("query.validate", true)
	viper.SetDefault("output.format", "auto")

	if c.rootFlags.cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(c.rootFlags.cfgFile)
	} else {
		viper.SetConfigName(".pquery")
		viper.AddConfigPath(".")

		// Search config in XDG_CONFIG_HOME directory with name ".pquery" (without extension).
		if cfgdir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(cfgdir)
		}
	}

	viper.SetEnvPrefix("PQUERY")
	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	// If a config file is found, read it in.
	ctx := context.Background()
	if err := viper.ReadInConfig(); err == nil {
		c.log.Debug(ctx, "Using config file", klog.AString("file", viper.ConfigFileUsed()))
	} else {
		c.log.Debug(ctx, "Failed reading config file", klog.AString("err", err.Error()))
	}

	if c.rootFlags.dbFile != "" {
		viper.Set("db.file", c.rootFlags.dbFile)
	}
	if c.rootFlags.driver != "" {
		viper.Set("db.driver", c.rootFlags.driver)
	}
}

func (c *Cmd) logFatal(ctx context.Context, err error) {
	c.log.Err(ctx, err)
	os.Exit(1)
}
