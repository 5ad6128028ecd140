package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pasturelabs/herdsync/internal/client/models"
	"github.com/pasturelabs/herdsync/internal/client/services"
	"github.com/pasturelabs/herdsync/internal/common"
)

const helpText = `commands:
  login <username>                     authenticate against the remote store
  list <type>                          list active records of a type
  add <type> <scope> <key> [json]      create a record
  update <type> <id> <json>            merge a JSON patch into a record
  del <type> <id>                      delete a record
  get <type> <id>                      show one record
  sync                                 run a sync cycle now
  pending                              count changes awaiting the remote store
  history <type> <id>                  show the audit trail
  restore <type> <id> <entry>          restore a record to an audit entry
  lock <id>                            acquire an edit lock
  unlock <token>                       release an edit lock
  quit`

func (app *App) repl(ctx context.Context) error {
	fmt.Println("herdsync - type 'help' for commands")
	for {
		fmt.Print("> ")
		line, err := app.reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}
		if err := app.dispatch(ctx, args); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (app *App) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		fmt.Println(helpText)
		return nil
	case "login":
		return app.cmdLogin(ctx, args[1:])
	case "list":
		return app.cmdList(ctx, args[1:])
	case "add":
		return app.cmdAdd(ctx, args[1:])
	case "update":
		return app.cmdUpdate(ctx, args[1:])
	case "del":
		return app.cmdDelete(ctx, args[1:])
	case "get":
		return app.cmdGet(ctx, args[1:])
	case "sync":
		return app.cmdSync(ctx)
	case "pending":
		return app.cmdPending(ctx)
	case "history":
		return app.cmdHistory(ctx, args[1:])
	case "restore":
		return app.cmdRestore(ctx, args[1:])
	case "lock":
		return app.cmdLock(ctx, args[1:])
	case "unlock":
		return app.cmdUnlock(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q, try 'help'", args[0])
	}
}

func entityType(name string) (models.EntityType, error) {
	typ, ok := models.TypeByName(name)
	if !ok {
		return models.EntityType{}, fmt.Errorf("unknown entity type %q", name)
	}
	return typ, nil
}

func (app *App) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <username>")
	}
	password, err := readPassword("password: ")
	if err != nil {
		return err
	}
	if err := app.api.Login(ctx, args[0], password); err != nil {
		return err
	}
	app.actor = args[0]
	fmt.Println("logged in as", args[0])
	return nil
}

func (app *App) cmdList(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: list <type>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	recs, err := app.entities.Query(ctx, typ, nil)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		synced := " "
		if rec.Synced {
			synced = "*"
		}
		fmt.Printf("%s %s  key=%s  %s\n", synced, rec.ID, rec.NaturalKey, rec.Data)
	}
	fmt.Printf("%d record(s)\n", len(recs))
	return nil
}

func (app *App) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: add <type> <scope> <key> [json]")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	rec := &models.Record{Scope: args[1], NaturalKey: args[2]}
	if len(args) > 3 {
		rec.Data = json.RawMessage(strings.Join(args[3:], " "))
	}
	if err := app.entities.Create(ctx, typ, rec, app.actorName()); err != nil {
		return err
	}
	fmt.Println("created", rec.ID)
	return nil
}

func (app *App) cmdUpdate(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: update <type> <id> <json>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	patch := services.Patch{Data: json.RawMessage(strings.Join(args[2:], " "))}
	rec, err := app.entities.Update(ctx, typ, args[1], patch, app.actorName())
	if err != nil {
		return err
	}
	fmt.Println("updated", rec.ID, "at", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func (app *App) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: del <type> <id>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	if err := app.entities.Delete(ctx, typ, args[1], app.actorName()); err != nil {
		return err
	}
	fmt.Println("deleted", args[1])
	return nil
}

func (app *App) cmdGet(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <type> <id>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	rec, err := app.entities.Get(ctx, typ, args[1])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (app *App) cmdSync(ctx context.Context) error {
	res, err := app.sync.SyncNow(ctx)
	if errors.Is(err, common.ErrSyncInProgress) {
		fmt.Println("a sync is already in progress")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("pushed=%d deleted=%d pulled=%d errors=%d\n",
		res.Pushed, res.Deleted, res.Pulled, res.Errors)
	return nil
}

func (app *App) cmdPending(ctx context.Context) error {
	n, err := app.entities.PendingCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d change(s) pending\n", n)
	return nil
}

func (app *App) cmdHistory(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: history <type> <id>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	entries, err := app.entities.History(ctx, typ, args[1])
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("#%d %s %s by %s at %s\n",
			e.ID, e.Action, e.EntityID, e.Actor, e.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (app *App) cmdRestore(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: restore <type> <id> <entry>")
	}
	typ, err := entityType(args[0])
	if err != nil {
		return err
	}
	entryID, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entry id %q", args[2])
	}
	rec, err := app.entities.Restore(ctx, typ, args[1], entryID, app.actorName())
	if err != nil {
		return err
	}
	fmt.Println("restored", rec.ID)
	return nil
}

func (app *App) cmdLock(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: lock <id>")
	}
	token, err := app.locks.Acquire(ctx, args[0], app.actorName(), app.config.SessionTimeout)
	if err != nil {
		return err
	}
	fmt.Println("lock token:", token)
	return nil
}

func (app *App) cmdUnlock(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unlock <token>")
	}
	if err := app.locks.Release(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("released")
	return nil
}

func (app *App) actorName() string {
	if app.actor == "" {
		return "local"
	}
	return app.actor
}
