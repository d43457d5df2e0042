package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"xorkevin.dev/kerrors"
	"xorkevin.dev/klog"
	"xorkevin.dev/pquery/query"
	"xorkevin.dev/pquery/sqldb"
	"xorkevin.dev/pquery/usermodel"
)

type (
	listFlags struct {
		limit  int
		offset int
	}
)

func (c *Cmd) getListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:               "list",
		Short:             "Lists users",
		Long:              `Lists users ordered by userid, one page at a time`,
		Args:              cobra.NoArgs,
		Run:               c.execList,
		DisableAutoGenTag: true,
	}
	c.addOutputFlags(listCmd)
	listCmd.Flags().IntVarP(&c.listFlags.limit, "limit", "l", 32, "max number of users to list")
	listCmd.Flags().IntVar(&c.listFlags.offset, "offset", 0, "number of users to skip")
	return listCmd
}

func (c *Cmd) execList(cmd *cobra.Command, args []string) {
	ctx := klog.CtxWithAttrs(context.Background(), klog.AString("cmd", "list"))
	if err := c.runList(ctx, c.listFlags.limit, c.listFlags.offset); err != nil {
		c.logFatal(ctx, err)
		return
	}
}

func (c *Cmd) runList(ctx context.Context, limit, offset int) error {
	format, err := c.outputFormat()
	if err != nil {
		return err
	}
	table, err := usermodel.New(usermodel.DefaultTableName)
	if err != nil {
		return err
	}
	models, err := c.listUsers(ctx, table, limit, offset)
	if err != nil {
		return err
	}
	res := &query.Result{
		Columns: []string{"userid", "username", "first_name", "last_name", "creation_time"},
		Rows:    make([][]interface{}, 0, len(models)),
	}
	for _, m := range models {
		res.Rows = append(res.Rows, []interface{}{m.Userid, m.Username, m.FirstName, m.LastName, m.CreationTime})
	}
	return c.writeResult(ctx, format, res)
}

func (c *Cmd) listUsers(ctx context.Context, table *usermodel.ModelTable, limit, offset int) (_ []usermodel.Model, retErr error) {
	opener, err := c.opener(sqldb.ModeReadOnly)
	if err != nil {
		return nil, err
	}
	conn, err := opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			retErr = errors.Join(retErr, kerrors.WithMsg(err, "Failed to close db connection"))
		}
	}()
	models, err := table.GetModelAll(ctx, conn, limit, offset)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed to list users")
	}
	return models, nil
}
