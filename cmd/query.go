package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"xorkevin.dev/kerrors"
	"xorkevin.dev/kfs"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/envexpand"
	"xorkevin.dev/pquery/output"
	"xorkevin.dev/pquery/query"
	"xorkevin.dev/pquery/sqldb"
)

const (
	userQuery = "SELECT * FROM users WHERE username = ?"

	outputFileMode = 0o644
	outputFileFlag = os.O_WRONLY | os.O_TRUNC | os.O_CREATE
)

type (
	queryFlags struct {
		noValidate bool
	}

	outputFlags struct {
		format string
		output string
	}
)

func (c *Cmd) getQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [username]",
		Short: "Looks up a user by username",
		Long: `Looks up a user by username

The username is always bound as a query parameter and never formatted into the
query text. Without an argument the configured username is used.`,
		Args:              cobra.MaximumNArgs(1),
		Run:               c.execQuery,
		DisableAutoGenTag: true,
	}
	c.addQueryFlags(queryCmd)
	return queryCmd
}

func (c *Cmd) addQueryFlags(cmd *cobra.Command) {
	c.addOutputFlags(cmd)
	cmd.Flags().BoolVar(&c.queryFlags.noValidate, "no-validate", false, "pass queries that fail to parse or may write on to the driver (arg counts are still checked)")
}

func (c *Cmd) addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.outputFlags.format, "format", "f", "", "output format: auto, table, json, yaml, tsv (default is auto)")
	cmd.Flags().StringVarP(&c.outputFlags.output, "output", "o", "", "write results to a file instead of stdout")
}

func (c *Cmd) execQuery(cmd *cobra.Command, args []string) {
	username := viper.GetString("query.username")
	if len(args) > 0 {
		username = args[0]
	}
	ctx := klog.CtxWithAttrs(context.Background(), klog.AString("cmd", "query"))
	if err := c.runQuery(ctx, username); err != nil {
		c.logFatal(ctx, err)
		return
	}
}

func (c *Cmd) runQuery(ctx context.Context, username string) error {
	format, err := c.outputFormat()
	if err != nil {
		return err
	}

	opener, err := c.opener(sqldb.ModeReadOnly)
	if err != nil {
		return err
	}
	ex := query.New(opener, c.logger, query.Opts{
		Validate: viper.GetBool("query.validate") && !c.queryFlags.noValidate,
		ReadOnly: true,
	})
	res, err := ex.Execute(ctx, userQuery, username)
	if err != nil {
		return kerrors.WithMsg(err, "Failed to look up user")
	}
	return c.writeResult(ctx, format, res)
}

func (c *Cmd) outputFormat() (output.Format, error) {
	formatStr := viper.GetString("output.format")
	if c.outputFlags.format != "" {
		formatStr = c.outputFlags.format
	}
	return output.ParseFormat(formatStr)
}

func (c *Cmd) writeResult(ctx context.Context, format output.Format, res *query.Result) (retErr error) {
	var w io.Writer = os.Stdout
	if c.outputFlags.output != "" {
		file, err := kfs.OpenFile(kfs.DirFS("."), c.outputFlags.output, outputFileFlag, outputFileMode)
		if err != nil {
			return kerrors.WithMsg(err, fmt.Sprintf("Failed to write file %s", c.outputFlags.output))
		}
		defer func() {
			if err := file.Close(); err != nil {
				retErr = errors.Join(retErr, kerrors.WithMsg(err, fmt.Sprintf("Failed to close open file %s", c.outputFlags.output)))
			}
		}()
		w = file
	}
	if err := output.Write(w, format, res); err != nil {
		return err
	}
	c.log.Debug(ctx, "Printed rows", klog.AAny("rows", len(res.Rows)))
	return nil
}

func (c *Cmd) opener(mode sqldb.Mode) (*sqldb.SQLOpener, error) {
	dbfile, err := envexpand.Expand(viper.GetString("db.file"), nil)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Invalid db file path")
	}
	dsn, err := sqldb.FileDSN(dbfile, mode)
	if err != nil {
		return nil, err
	}
	return sqldb.NewSQLOpener(viper.GetString("db.driver"), dsn), nil
}
