package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"xorkevin.dev/kerrors"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/sqldb"
	"xorkevin.dev/pquery/usermodel"
)

func (c *Cmd) getSetupCmd() *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup [username ...]",
		Short: "Creates the users table",
		Long: `Creates the users table in the database file, creating the file if needed,
and inserts the given usernames. Existing usernames are left untouched.

Without arguments the configured username is inserted.`,
		Run:               c.execSetup,
		DisableAutoGenTag: true,
	}
	return setupCmd
}

func (c *Cmd) execSetup(cmd *cobra.Command, args []string) {
	usernames := args
	if len(usernames) == 0 {
		usernames = []string{viper.GetString("query.username")}
	}
	ctx := klog.CtxWithAttrs(context.Background(), klog.AString("cmd", "setup"))
	if err := c.runSetup(ctx, usernames); err != nil {
		c.logFatal(ctx, err)
		return
	}
}

func (c *Cmd) runSetup(ctx context.Context, usernames []string) (retErr error) {
	opener, err := c.opener(sqldb.ModeReadWriteCreate)
	if err != nil {
		return err
	}
	conn, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			retErr = errors.Join(retErr, kerrors.WithMsg(err, "Failed to close db connection"))
		}
	}()

	table, err := usermodel.New(usermodel.DefaultTableName)
	if err != nil {
		return err
	}
	if err := table.Setup(ctx, conn); err != nil {
		return kerrors.WithMsg(err, "Failed to setup users table")
	}
	now := time.Now().Round(0).Unix()
	models := make([]*usermodel.Model, 0, len(usernames))
	for _, i := range usernames {
		models = append(models, &usermodel.Model{
			Username:     i,
			FirstName:    i,
			LastName:     "",
			CreationTime: now,
		})
	}
	if err := table.InsertBulk(ctx, conn, models, true); err != nil {
		return kerrors.WithMsg(err, "Failed to insert users")
	}
	c.log.Info(ctx, "Setup users table", klog.AString("table", table.TableName), klog.AAny("users", len(models)))
	return nil
}
